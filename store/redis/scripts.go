package redis

// Script names registered with the runner.
const (
	scriptLeaderUpdate    = "leader_update"
	scriptLeaderUnlock    = "leader_unlock"
	scriptPrivateRequeue  = "private_requeue"
	scriptDeadlineFetch   = "deadline_fetch"
	scriptDeadlineRequeue = "deadline_requeue"
)

// KEYS[1] lease, ARGV[1] holder, ARGV[2] ttl in ms.
const leaderUpdateSrc = `
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`

// KEYS[1] lease, ARGV[1] holder.
const leaderUnlockSrc = `
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`

// KEYS[1] private list, KEYS[2] public queue, ARGV[1] job.
const privateRequeueSrc = `
local removed = redis.call("lrem", KEYS[1], -1, ARGV[1])
if removed > 0 then
  redis.call("lpush", KEYS[2], ARGV[1])
end
return removed
`

// KEYS[1] pending set, KEYS[2..] queues in order, ARGV[1] deadline score.
// Returns {position, job} of the first non-empty queue.
const deadlineFetchSrc = `
for i = 2, #KEYS do
  local job = redis.call("rpop", KEYS[i])
  if job then
    redis.call("zadd", KEYS[1], ARGV[1], job)
    return {i - 1, job}
  end
end
return nil
`

// KEYS[1] pending set, KEYS[2] queue names set, KEYS[3] public queue,
// ARGV[1] job, ARGV[2] queue name.
const deadlineRequeueSrc = `
if redis.call("zrem", KEYS[1], ARGV[1]) > 0 then
  redis.call("sadd", KEYS[2], ARGV[2])
  redis.call("rpush", KEYS[3], ARGV[1])
  return 1
end
return 0
`
