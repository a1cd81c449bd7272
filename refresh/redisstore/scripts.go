package redisstore

import "github.com/redis/go-redis/v9"

const (
	rotateStatusNotFound  int64 = 0
	rotateStatusOK        int64 = 1
	rotateStatusMismatch  int64 = 2
	rotateStatusRotated   int64 = 3
	rotateStatusRevoked   int64 = 4
	rotateStatusCollision int64 = 5
)

const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "uid", ARGV[1],
  "st", "active",
  "succ", "",
  "prev", "",
  "ver", "0",
  "exp", ARGV[2],
  "cat", ARGV[3])
redis.call("PEXPIREAT", KEYS[1], tonumber(ARGV[2]) + tonumber(ARGV[4]))
return 1
`

var createLua = redis.NewScript(createScript)

// KEYS[1] current record, KEYS[2] successor record.
// ARGV: expected version, successor ref, current ref, successor expiry ms,
// created-at ms, retention ms.
// Returns {status}, or {1, uid} on success.
const rotateScript = `
local st = redis.call("HGET", KEYS[1], "st")
if not st then
  return {0}
end
if st == "rotated" then
  return {3}
end
if st == "revoked" then
  return {4}
end
if redis.call("HGET", KEYS[1], "ver") ~= ARGV[1] then
  return {2}
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {5}
end

local uid = redis.call("HGET", KEYS[1], "uid")
local keep_until = tonumber(ARGV[4]) + tonumber(ARGV[6])

redis.call("HSET", KEYS[1], "st", "rotated", "succ", ARGV[2])
redis.call("HINCRBY", KEYS[1], "ver", 1)
redis.call("PEXPIREAT", KEYS[1], keep_until)

redis.call("HSET", KEYS[2],
  "uid", uid,
  "st", "active",
  "succ", "",
  "prev", ARGV[3],
  "ver", "0",
  "exp", ARGV[4],
  "cat", ARGV[5])
redis.call("PEXPIREAT", KEYS[2], keep_until)
return {1, uid}
`

var rotateLua = redis.NewScript(rotateScript)

// KEYS[1] start record. ARGV: key prefix, start ref, max records visited.
// Returns -1 when the start record is missing, otherwise the number of
// records whose status changed.
const revokeChainScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end

local prefix = ARGV[1]
local start_id = ARGV[2]
local max = tonumber(ARGV[3])
local visited = {}
local seen = 0
local count = 0

local function revoke(key)
  local st = redis.call("HGET", key, "st")
  if not st then
    return false
  end
  if st ~= "revoked" then
    redis.call("HSET", key, "st", "revoked")
    redis.call("HINCRBY", key, "ver", 1)
    count = count + 1
  end
  return true
end

revoke(KEYS[1])
visited[start_id] = true
seen = 1

for _, field in ipairs({"prev", "succ"}) do
  local cur = start_id
  while seen < max do
    local nxt = redis.call("HGET", prefix .. cur, field)
    if not nxt or nxt == "" or visited[nxt] then
      break
    end
    if not revoke(prefix .. nxt) then
      break
    end
    visited[nxt] = true
    seen = seen + 1
    cur = nxt
  end
end

return count
`

var revokeChainLua = redis.NewScript(revokeChainScript)
