package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/matchsync/internal/model"
)

var (
	// ErrUnknownType is returned for frames whose type is not recognized.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMissingTimestamp is returned for score and status deltas without ts.
	ErrMissingTimestamp = errors.New("delta missing timestamp")

	// ErrMissingKey is returned when the identifying key of a message is empty.
	ErrMissingKey = errors.New("message missing identifying key")
)

// Decode parses one inbound frame.
func Decode(f Frame) (Message, error) {
	var env envelope
	if err := json.Unmarshal(f.Data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}

	msg := Message{
		Kind:       Kind(env.Type),
		ID:         env.ID,
		Generation: f.Generation,
		ReceivedAt: f.ReceivedAt,
		Timestamp:  f.ReceivedAt,
	}
	if env.Ts != nil {
		msg.Timestamp = env.Ts.UTC()
	}
	ts := msg.Timestamp

	var err error
	switch msg.Kind {
	case KindAck:
		var w ackWire
		if err = unmarshalMsg(env.Msg, &w); err == nil {
			msg.Payload = Ack{Success: w.Success, Error: w.Error}
		}

	case KindRoomJoined, KindRoomLeft:
		var w roomWire
		if err = unmarshalMsg(env.Msg, &w); err == nil {
			if w.MatchID == "" {
				return Message{}, fmt.Errorf("%s: %w", msg.Kind, ErrMissingKey)
			}
			msg.Payload = model.RoomEvent{MatchID: w.MatchID, UserID: w.UserID, Timestamp: ts}
		}

	case KindScoreUpdate:
		if env.Ts == nil {
			return Message{}, fmt.Errorf("%s: %w", msg.Kind, ErrMissingTimestamp)
		}
		var w scoreWire
		if err = unmarshalMsg(env.Msg, &w); err == nil {
			if w.EventID == "" {
				return Message{}, fmt.Errorf("%s: %w", msg.Kind, ErrMissingKey)
			}
			msg.Payload = model.ScoreDelta{
				EventID:    w.EventID,
				ExternalID: w.ExternalID,
				HomeScore:  w.HomeScore,
				AwayScore:  w.AwayScore,
				GameTime:   w.GameTime,
				Timestamp:  ts,
			}
		}

	case KindStatusUpdate:
		if env.Ts == nil {
			return Message{}, fmt.Errorf("%s: %w", msg.Kind, ErrMissingTimestamp)
		}
		var w statusWire
		if err = unmarshalMsg(env.Msg, &w); err == nil {
			if w.EventID == "" {
				return Message{}, fmt.Errorf("%s: %w", msg.Kind, ErrMissingKey)
			}
			d := model.StatusDelta{
				EventID:    w.EventID,
				ExternalID: w.ExternalID,
				Status:     model.ParseEventStatus(w.Status),
				Timestamp:  ts,
			}
			if w.FinalScore != nil {
				d.Final = &model.FinalScore{Home: w.FinalScore.Home, Away: w.FinalScore.Away}
			}
			msg.Payload = d
		}

	case KindMatchSettled:
		var w settledWire
		if err = unmarshalMsg(env.Msg, &w); err == nil {
			if w.MatchID == "" {
				return Message{}, fmt.Errorf("%s: %w", msg.Kind, ErrMissingKey)
			}
			s := model.MatchSettled{MatchID: w.MatchID, Timestamp: ts}
			for _, p := range w.Picks {
				if p.PickID == "" {
					continue
				}
				s.Picks = append(s.Picks, model.SettledPick{PickID: p.PickID, Status: model.ParseOutcome(p.Status)})
			}
			msg.Payload = s
		}

	case KindQueueExpired:
		var w queueExpiredWire
		if err = unmarshalMsg(env.Msg, &w); err == nil {
			msg.Payload = model.QueueExpired{QueueID: w.QueueID, Reason: w.Reason, Timestamp: ts}
		}

	case KindPresence:
		var w presenceWire
		if err = unmarshalMsg(env.Msg, &w); err == nil {
			if w.UserID == "" {
				return Message{}, fmt.Errorf("%s: %w", msg.Kind, ErrMissingKey)
			}
			msg.Payload = model.PresenceEvent{
				MatchID:     w.MatchID,
				UserID:      w.UserID,
				DisplayName: w.DisplayName,
				IsPresent:   w.IsPresent,
				Timestamp:   ts,
			}
		}

	case KindError:
		var w errorWire
		if err = unmarshalMsg(env.Msg, &w); err == nil {
			msg.Payload = model.ServerError{Code: w.Code, Message: w.Message, Timestamp: ts}
		}

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return Message{}, fmt.Errorf("decode %s: %w", msg.Kind, err)
	}
	return msg, nil
}

// EncodeCommand serializes an outbound command.
func EncodeCommand(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// IsCredentialExpired reports whether msg is a credential_expired error.
func IsCredentialExpired(msg Message) bool {
	if msg.Kind != KindError {
		return false
	}
	e, ok := msg.Payload.(model.ServerError)
	return ok && e.Code == ErrorCodeCredentialExpired
}

func unmarshalMsg(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
