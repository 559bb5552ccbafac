package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signsense-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RoomStore keeps each room in four hashes sharing a hash tag so they live
// in the same cluster slot:
//
//	HSET room:{CODE}          code, state, question_index, subject, version
//	HSET room:{CODE}:scores   <player> <score>
//	HSET room:{CODE}:answers  <player> <answer>
//	HSET room:{CODE}:answered <player> <last answered index + 1>
//
// Patches run as one Lua script so host and player writes never overwrite each other.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoomStore creates a store; ttl > 0 refreshes expiry on every write.
func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

func metaKey(code string) string    { return "room:{" + code + "}" }
func scoresKey(code string) string  { return metaKey(code) + ":scores" }
func answersKey(code string) string { return metaKey(code) + ":answers" }

func answeredKey(code string) string { return metaKey(code) + ":answered" }

func roomKeys(code string) []string {
	return []string{metaKey(code), scoresKey(code), answersKey(code), answeredKey(code)}
}

// Create relies on WATCH so two hosts racing on the same code can't both win.
func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	meta := metaKey(room.Code)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, meta).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", domain.ErrRoomExists, room.Code)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, meta,
				"code", room.Code,
				"state", string(room.State),
				"question_index", room.QuestionIndex,
				"subject", room.Subject,
				"version", room.Version,
			)
			for name, p := range room.Players {
				pipe.HSet(ctx, scoresKey(room.Code), name, p.Score)
				if p.Answer != nil {
					pipe.HSet(ctx, answersKey(room.Code), name, *p.Answer)
				}
				if p.Answered > 0 {
					pipe.HSet(ctx, answeredKey(room.Code), name, p.Answered)
				}
			}
			if s.ttl > 0 {
				for _, key := range roomKeys(room.Code) {
					pipe.PExpire(ctx, key, s.ttl)
				}
			}
			return nil
		})
		return err
	}, meta)
	return storeErr(err)
}

func (s *RoomStore) Get(ctx context.Context, code string) (domain.Room, error) {
	var meta, scores, answers, answered *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, metaKey(code))
		scores = pipe.HGetAll(ctx, scoresKey(code))
		answers = pipe.HGetAll(ctx, answersKey(code))
		answered = pipe.HGetAll(ctx, answeredKey(code))
		return nil
	})
	if err != nil {
		return domain.Room{}, storeErr(err)
	}
	if len(meta.Val()) == 0 {
		return domain.Room{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	return decodeRoom(code, meta.Val(), scores.Val(), answers.Val(), answered.Val())
}

func decodeRoom(code string, meta, scores, answers, answered map[string]string) (domain.Room, error) {
	room := domain.NewRoom(code, meta["subject"])
	room.State = domain.RoomState(meta["state"])

	var err error
	if room.QuestionIndex, err = strconv.Atoi(meta["question_index"]); err != nil {
		return domain.Room{}, fmt.Errorf("room %s: bad question_index: %w", code, err)
	}
	if room.Version, err = strconv.ParseInt(meta["version"], 10, 64); err != nil {
		return domain.Room{}, fmt.Errorf("room %s: bad version: %w", code, err)
	}
	for name, raw := range scores {
		score, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Room{}, fmt.Errorf("room %s: bad score for %s: %w", code, name, err)
		}
		p := domain.PlayerState{Score: score}
		if a, ok := answers[name]; ok {
			p.Answer = &a
		}
		if raw, ok := answered[name]; ok {
			if p.Answered, err = strconv.Atoi(raw); err != nil {
				return domain.Room{}, fmt.Errorf("room %s: bad answered for %s: %w", code, name, err)
			}
		}
		room.Players[name] = p
	}
	return room, nil
}

// patchScript mirrors domain.RoomPatch.Apply.
//
// KEYS: meta, scores, answers, answered
// ARGV: require_states(csv), require_question, state, advance, player,
// ensure, has_answer, answer, score_delta, ttl_ms
var patchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 'NOT_FOUND' end
local state = redis.call('HGET', KEYS[1], 'state')
local index = redis.call('HGET', KEYS[1], 'question_index')
local function failed() return 'PRECONDITION:' .. state .. ':' .. index end
if ARGV[1] ~= '' then
  local ok = false
  for s in string.gmatch(ARGV[1], '[^,]+') do
    if s == state then ok = true end
  end
  if not ok then return failed() end
end
if ARGV[2] ~= '' and ARGV[2] ~= index then return failed() end
if ARGV[5] ~= '' then
  local exists = redis.call('HEXISTS', KEYS[2], ARGV[5]) == 1
  if not exists and ARGV[6] ~= '1' then return 'NO_PLAYER' end
  if ARGV[7] == '1' then
    local done = tonumber(redis.call('HGET', KEYS[4], ARGV[5]) or '0')
    if done > tonumber(index) then return 'ANSWERED' end
  end
  if not exists then redis.call('HSET', KEYS[2], ARGV[5], '0') end
  if ARGV[7] == '1' then
    redis.call('HSET', KEYS[3], ARGV[5], ARGV[8])
    redis.call('HSET', KEYS[4], ARGV[5], tonumber(index) + 1)
  end
  local delta = tonumber(ARGV[9])
  if delta ~= 0 then redis.call('HINCRBY', KEYS[2], ARGV[5], delta) end
end
if ARGV[3] ~= '' then redis.call('HSET', KEYS[1], 'state', ARGV[3]) end
if ARGV[4] == '1' then redis.call('HINCRBY', KEYS[1], 'question_index', 1) end
redis.call('HINCRBY', KEYS[1], 'version', 1)
local ttl = tonumber(ARGV[10])
if ttl > 0 then
  for i = 1, #KEYS do redis.call('PEXPIRE', KEYS[i], ttl) end
end
return 'OK'
`)

func (s *RoomStore) Patch(ctx context.Context, code string, patch domain.RoomPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	requireQuestion := ""
	if patch.RequireQuestion != nil {
		requireQuestion = strconv.Itoa(*patch.RequireQuestion)
	}
	state := ""
	if patch.State != nil {
		state = string(*patch.State)
	}
	answer, hasAnswer := "", "0"
	if patch.Answer != nil {
		answer, hasAnswer = *patch.Answer, "1"
	}

	res, err := patchScript.Run(ctx, s.client,
		roomKeys(code),
		strings.Join(patch.StateNames(), ","),
		requireQuestion,
		state,
		flag(patch.AdvanceQuestion),
		patch.Player,
		flag(patch.EnsurePlayer),
		hasAnswer,
		answer,
		patch.ScoreDelta,
		s.ttl.Milliseconds(),
	).Text()
	if err != nil {
		return storeErr(err)
	}

	switch {
	case res == "OK":
		return nil
	case res == "NOT_FOUND":
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	case res == "NO_PLAYER":
		return fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, patch.Player)
	case res == "ANSWERED":
		return fmt.Errorf("%w: %s in room %s", domain.ErrAlreadyAnswered, patch.Player, code)
	case strings.HasPrefix(res, "PRECONDITION:"):
		parts := strings.SplitN(res, ":", 3)
		room := domain.Room{Code: code}
		if len(parts) == 3 {
			room.State = domain.RoomState(parts[1])
			room.QuestionIndex, _ = strconv.Atoi(parts[2])
		}
		return domain.PreconditionFailed(room)
	default:
		return fmt.Errorf("%w: unexpected script reply %q", domain.ErrStoreUnavailable, res)
	}
}

func (s *RoomStore) Delete(ctx context.Context, code string) error {
	n, err := s.client.Del(ctx, roomKeys(code)...).Result()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	return nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// storeErr passes domain errors through and classifies everything else.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	case errors.Is(err, domain.ErrRoomExists), errors.Is(err, domain.ErrRoomNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}
