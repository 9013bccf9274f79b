package counters

import "github.com/redis/go-redis/v9"

// The idempotency marker and the primary mutation are applied by a single
// server-side script so the pair is all-or-nothing: a crash can never leave
// a marker without its mutation or a mutation without its marker. Markers
// are written with a TTL sized to the retry window.

// markerIncrScript checks the marker and increments an integer key.
// KEYS[1]=marker KEYS[2]=counter ARGV[1]=delta ARGV[2]=ttl-seconds.
// Returns {applied, value}: on a marker hit, value is the current counter
// value; otherwise the post-increment value.
var markerIncrScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  local cur = redis.call("GET", KEYS[2])
  if not cur then
    return {0, 0}
  end
  return {0, tonumber(cur)}
end
redis.call("SET", KEYS[1], "1", "EX", ARGV[2])
return {1, redis.call("INCRBY", KEYS[2], ARGV[1])}
`)

// markerHIncrScript checks the marker and increments one hash field.
// KEYS[1]=marker KEYS[2]=hash ARGV[1]=field ARGV[2]=delta ARGV[3]=ttl-seconds.
// Returns {applied, newFieldValue}.
var markerHIncrScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {0, 0}
end
redis.call("SET", KEYS[1], "1", "EX", ARGV[3])
return {1, redis.call("HINCRBY", KEYS[2], ARGV[1], ARGV[2])}
`)

// markerClearScript checks the marker, zeroes the value key and deletes the
// optional delta accumulator.
// KEYS[1]=marker KEYS[2]=value KEYS[3]=deltas (optional) ARGV[1]=ttl-seconds.
// Returns 1 when the clear was applied, 0 on a marker hit.
var markerClearScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], "1", "EX", ARGV[1])
redis.call("SET", KEYS[2], "0")
if KEYS[3] then
  redis.call("DEL", KEYS[3])
end
return 1
`)

// reconcileScript folds the delta hash into the snapshot in one atomic
// step: sum the hash, INCRBY the snapshot by the sum, delete the hash and
// stamp the reconciliation instant. Running read-sum and delete inside one
// script means neither a concurrent writer nor a concurrent reconciler can
// lose or double-apply a delta.
// KEYS[1]=snapshot KEYS[2]=deltas KEYS[3]=lastSnapshotTs ARGV[1]=epoch-millis.
// Returns the reconciled snapshot value.
var reconcileScript = redis.NewScript(`
local sum = 0
local deltas = redis.call("HGETALL", KEYS[2])
for i = 1, #deltas, 2 do
  sum = sum + tonumber(deltas[i + 1])
end
if sum ~= 0 then
  local snap = redis.call("INCRBY", KEYS[1], sum)
  redis.call("DEL", KEYS[2])
  redis.call("SET", KEYS[3], ARGV[1])
  return snap
end
if #deltas > 0 then
  redis.call("DEL", KEYS[2])
end
local cur = redis.call("GET", KEYS[1])
if not cur then
  return 0
end
return tonumber(cur)
`)
