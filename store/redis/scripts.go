package redis

import goredis "github.com/redis/go-redis/v9"

// Script results for ownership failures.
const (
	resNotFound  = -1
	resLeaseLost = -2
)

// ownership is prepended to scripts that act on a held job.
// KEYS[1] job hash; ARGV[1] worker id.
const ownership = `
local w = redis.call('HGET', KEYS[1], 'worker_id')
if not w then
  if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
  return -2
end
if w ~= ARGV[1] or redis.call('HGET', KEYS[1], 'state') ~= 'active' then return -2 end
`

// readyMember renders a ready-set member from a seq and id.
const readyMember = `
local function member(seq, id)
  return string.format('%020d', tonumber(seq)) .. ':' .. id
end
`

// serverClock reads the Redis server's clock so every process sharing the
// store orders and delays jobs by the same time source. Times are stored as
// unix milliseconds.
const serverClock = `
local function nowms()
  local t = redis.call('TIME')
  return tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
end
local function fmt(n) return string.format('%.0f', n) end
`

// pushScript stores a new job and returns {seq, now_ms}.
// KEYS: job hash, seq, ready. ARGV: id, field/value pairs...
var pushScript = goredis.NewScript(readyMember + serverClock + `
if redis.call('EXISTS', KEYS[1]) == 1 then return {-3, 0} end
local now = fmt(nowms())
local seq = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('HSET', KEYS[1], 'seq', seq, 'available_at', now,
  'created_at', now, 'updated_at', now)
redis.call('ZADD', KEYS[3], now, member(seq, ARGV[1]))
return {seq, tonumber(now)}
`)

// claimScript moves the lowest ready job whose score is due to active.
// KEYS: ready, active. ARGV: lease_ms, worker id, job key prefix.
var claimScript = goredis.NewScript(serverClock + `
local now = nowms()
local m = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', fmt(now), 'LIMIT', 0, 1)
if #m == 0 then return false end
local id = string.sub(m[1], 22)
local key = ARGV[3] .. id
redis.call('ZREM', KEYS[1], m[1])
if redis.call('EXISTS', key) == 0 then return false end
local exp = fmt(now + tonumber(ARGV[1]))
redis.call('ZADD', KEYS[2], exp, id)
redis.call('HINCRBY', key, 'attempts', 1)
redis.call('HSET', key, 'state', 'active', 'worker_id', ARGV[2],
  'lease_expires_at', exp, 'started_at', fmt(now), 'updated_at', fmt(now))
return redis.call('HGETALL', key)
`)

// ackScript deletes a held job.
// KEYS: job hash, active. ARGV: worker id, id.
var ackScript = goredis.NewScript(ownership + `
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

// nackScript records a failed attempt on a held job.
// KEYS: job hash, active, ready, dead. ARGV: worker id, id, dead flag,
// delay_ms, reason.
var nackScript = goredis.NewScript(ownership + readyMember + serverClock + `
local now = nowms()
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('HDEL', KEYS[1], 'worker_id', 'lease_expires_at')
redis.call('HSET', KEYS[1], 'last_error', ARGV[5], 'failed_at', fmt(now), 'updated_at', fmt(now))
if ARGV[3] == '1' then
  redis.call('HSET', KEYS[1], 'state', 'dead')
  redis.call('ZADD', KEYS[4], fmt(now), ARGV[2])
else
  local avail = fmt(now + tonumber(ARGV[4]))
  redis.call('HSET', KEYS[1], 'state', 'failed-retryable', 'available_at', avail)
  local seq = redis.call('HGET', KEYS[1], 'seq')
  redis.call('ZADD', KEYS[3], avail, member(seq, ARGV[2]))
end
return 1
`)

// extendScript renews the lease of a held job.
// KEYS: job hash, active. ARGV: worker id, id, lease_ms.
var extendScript = goredis.NewScript(ownership + serverClock + `
local exp = fmt(nowms() + tonumber(ARGV[3]))
redis.call('HSET', KEYS[1], 'lease_expires_at', exp)
redis.call('ZADD', KEYS[2], exp, ARGV[2])
return 1
`)

// requeueScript returns active jobs whose lease ended before now to the
// ready set at their original position. Attempts are left alone.
// KEYS: active, ready. ARGV: job key prefix.
var requeueScript = goredis.NewScript(readyMember + serverClock + `
local now = fmt(nowms())
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. now)
local n = 0
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  local key = ARGV[1] .. id
  if redis.call('HGET', key, 'state') == 'active' then
    redis.call('HDEL', key, 'worker_id', 'lease_expires_at')
    redis.call('HSET', key, 'state', 'waiting', 'updated_at', now)
    local f = redis.call('HMGET', key, 'seq', 'available_at')
    redis.call('ZADD', KEYS[2], f[2], member(f[1], id))
    n = n + 1
  end
end
return n
`)

// purgeScript deletes dead jobs that died before the cutoff.
// KEYS: dead. ARGV: cutoff (exclusive score bound), job key prefix.
var purgeScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('DEL', ARGV[2] .. id)
  redis.call('ZREM', KEYS[1], id)
end
return #ids
`)
