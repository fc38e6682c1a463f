package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/eventscope/internal/model"
)

// PayloadParser turns rendered JSON payloads into model records. A parser
// is not safe for concurrent use; each channel reader owns one.
type PayloadParser struct {
	parser fastjson.Parser
}

// Parse decodes one rendered payload. The channel name is stamped onto the
// record since payloads from a channel query do not repeat it. Records
// with a missing or unparseable timestamp get the current time rather than
// failing the whole record.
func (p *PayloadParser) Parse(raw []byte, channel string) (*model.Record, error) {
	v, err := p.parser.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("parse payload: expected object, got %s", v.Type())
	}

	rec := &model.Record{
		Channel:     channel,
		EventID:     uint32(v.GetUint64("event_id")),
		Level:       uint8(v.GetUint64("level")),
		Provider:    stringField(v, "provider"),
		Computer:    stringField(v, "computer"),
		Message:     stringField(v, "message"),
		ProcessID:   uint32(v.GetUint64("process_id")),
		ThreadID:    uint32(v.GetUint64("thread_id")),
		Task:        uint16(v.GetUint64("task")),
		Opcode:      uint8(v.GetUint64("opcode")),
		Keywords:    keywordsField(v),
		ActivityID:  stringField(v, "activity_id"),
		PrincipalID: stringField(v, "principal_id"),
		RawPayload:  string(raw),
	}

	if ch := stringField(v, "channel"); ch != "" {
		rec.Channel = ch
	}
	rec.Timestamp = timestampField(v)
	rec.EventData = dataField(v)
	return rec, nil
}

func stringField(v *fastjson.Value, key string) string {
	b := v.GetStringBytes(key)
	if b == nil {
		return ""
	}
	return string(b)
}

// timestampField parses the RFC 3339 timestamp, falling back to the
// current instant when absent or malformed so one bad clock field does
// not drop the record.
func timestampField(v *fastjson.Value) time.Time {
	b := v.GetStringBytes("timestamp")
	if b != nil {
		if ts, err := time.Parse(time.RFC3339Nano, string(b)); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

// keywordsField accepts either a JSON number or a "0x..." hex string,
// which is how provider keyword masks are usually written.
func keywordsField(v *fastjson.Value) uint64 {
	kw := v.Get("keywords")
	if kw == nil {
		return 0
	}
	switch kw.Type() {
	case fastjson.TypeNumber:
		u, _ := kw.Uint64()
		return u
	case fastjson.TypeString:
		s := string(kw.GetStringBytes())
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		u, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return 0
		}
		return u
	}
	return 0
}

func dataField(v *fastjson.Value) []model.DataPair {
	arr := v.GetArray("event_data")
	if len(arr) == 0 {
		return nil
	}
	pairs := make([]model.DataPair, 0, len(arr))
	for _, item := range arr {
		name := item.GetStringBytes("name")
		value := item.GetStringBytes("value")
		if name == nil && value == nil {
			continue
		}
		pairs = append(pairs, model.DataPair{
			Name:  string(name),
			Value: string(value),
		})
	}
	return pairs
}

// SynthesizeMessage builds a fallback message from the event data pairs
// when no provider template produced one.
func SynthesizeMessage(pairs []model.DataPair) string {
	if len(pairs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteString("; ")
		}
		if p.Name != "" {
			sb.WriteString(p.Name)
			sb.WriteString(": ")
		}
		sb.WriteString(p.Value)
	}
	return sb.String()
}

// ExtractTimestamp pulls the timestamp field out of a raw payload line
// without a full parse. Used by archive cursors to apply time predicates
// cheaply while scanning. Returns false when the field is absent or
// malformed, in which case the caller should keep the line.
func ExtractTimestamp(line []byte) (time.Time, bool) {
	const key = `"timestamp":"`
	s := string(line)
	i := strings.Index(s, key)
	if i < 0 {
		return time.Time{}, false
	}
	rest := s[i+len(key):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, rest[:j])
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}
