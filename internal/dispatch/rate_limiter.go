package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Per-domain send limits. Receiving domains that throttle aggressively get
// their own budget so one school's burst cannot burn the whole window.
type DomainLimit struct {
	Hourly int
	Burst  int // per minute, 0 disables the burst window
}

var defaultDomainLimits = map[string]DomainLimit{
	"gmail.com":   {Hourly: 3600, Burst: 120},
	"yahoo.com":   {Hourly: 2400, Burst: 80},
	"outlook.com": {Hourly: 3600, Burst: 120},
	"hotmail.com": {Hourly: 3600, Burst: 120},
	"icloud.com":  {Hourly: 2400, Burst: 80},
}

// fallbackLimit applies to any domain without an explicit entry.
var fallbackLimit = DomainLimit{Hourly: 6000, Burst: 200}

// Atomic check-and-increment over the hourly and burst windows. Returns
// {1, window} on allow, {0, window} on deny; window 1 is hourly, 2 burst.
const rateCheckScript = `
local hourlyKey = KEYS[1]
local burstKey = KEYS[2]
local hourlyLimit = tonumber(ARGV[1])
local burstLimit = tonumber(ARGV[2])
local hourlyTTL = tonumber(ARGV[3])
local burstTTL = tonumber(ARGV[4])

local hourly = tonumber(redis.call("GET", hourlyKey) or "0")
if hourly + 1 > hourlyLimit then
    return {0, 1}
end
if burstLimit > 0 then
    local burst = tonumber(redis.call("GET", burstKey) or "0")
    if burst + 1 > burstLimit then
        return {0, 2}
    end
end

local newHourly = redis.call("INCR", hourlyKey)
if newHourly == 1 then
    redis.call("EXPIRE", hourlyKey, hourlyTTL)
end
if burstLimit > 0 then
    local newBurst = redis.call("INCR", burstKey)
    if newBurst == 1 then
        redis.call("EXPIRE", burstKey, burstTTL)
    end
end
return {1, 0}
`

// RedisRateGuard throttles sends per receiving domain using Redis counters
// keyed by hour and minute windows. Checks and increments are atomic via a
// Lua script, so concurrent chunk workers cannot overshoot a limit.
type RedisRateGuard struct {
	client *redis.Client
	script *redis.Script
	limits map[string]DomainLimit
	now    func() time.Time
}

// NewRedisRateGuard connects to Redis and verifies the connection.
func NewRedisRateGuard(ctx context.Context, addr, password string, db int) (*RedisRateGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisRateGuardWithClient(client), nil
}

// NewRedisRateGuardWithClient wraps an existing client. Used by tests.
func NewRedisRateGuardWithClient(client *redis.Client) *RedisRateGuard {
	return &RedisRateGuard{
		client: client,
		script: redis.NewScript(rateCheckScript),
		limits: defaultDomainLimits,
		now:    time.Now,
	}
}

// Allow reports whether one send to recipient fits the domain's windows,
// incrementing the counters when it does. Returns a deny reason for the
// item error message.
func (g *RedisRateGuard) Allow(ctx context.Context, recipient string) (bool, string, error) {
	dom := recipientDomain(recipient)
	if dom == "" {
		return false, "invalid recipient address", nil
	}
	limit, ok := g.limits[dom]
	if !ok {
		limit = fallbackLimit
	}

	now := g.now().UTC()
	hourlyKey := fmt.Sprintf("notifier:rate:%s:hourly:%s", dom, now.Format("2006010215"))
	burstKey := fmt.Sprintf("notifier:rate:%s:burst:%s", dom, now.Format("200601021504"))

	res, err := g.script.Run(ctx, g.client,
		[]string{hourlyKey, burstKey},
		limit.Hourly, limit.Burst, 3900, 90,
	).Slice()
	if err != nil {
		return false, "", fmt.Errorf("rate check: %w", err)
	}
	if len(res) != 2 {
		return false, "", fmt.Errorf("rate check: unexpected script reply %v", res)
	}

	if res[0].(int64) == 1 {
		return true, "", nil
	}
	window := "hourly"
	if res[1].(int64) == 2 {
		window = "burst"
	}
	log.Debug("send denied by rate guard", "domain", dom, "window", window)
	return false, fmt.Sprintf("%s window exhausted for %s", window, dom), nil
}

func recipientDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
