package pgstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/docstore"
)

func TestBuildSelect(t *testing.T) {
	q := docstore.Query{Collection: "conversations/1_2/messages"}.Order("timestamp", docstore.Desc).Take(1)
	query, args, err := buildSelect(q, false)
	require.NoError(t, err)
	assert.Equal(t, `SELECT id, data FROM documents WHERE collection = $1 ORDER BY data -> $2::text DESC, id ASC LIMIT 1`, query)
	assert.Equal(t, []any{"conversations/1_2/messages", "timestamp"}, args)
}

func TestBuildSelectFilters(t *testing.T) {
	q := docstore.Query{Collection: "friendRequests"}.Where("receiverId", "7").Where("status", "pending")
	query, args, err := buildSelect(q, true)
	require.NoError(t, err)
	assert.Equal(t, `SELECT id, data FROM documents WHERE collection = $1 AND data -> $2::text = $3::jsonb AND data -> $4::text = $5::jsonb ORDER BY id ASC FOR UPDATE`, query)
	assert.Equal(t, []any{"friendRequests", "receiverId", `"7"`, "status", `"pending"`}, args)
}

func TestBuildSelectRejectsOddFields(t *testing.T) {
	_, _, err := buildSelect(docstore.Query{Collection: "c"}.Where(`a"b`, 1), false)
	assert.Error(t, err)
	_, _, err = buildSelect(docstore.Query{Collection: "c"}.Order("", docstore.Asc).Where("", 1), false)
	assert.Error(t, err)
}

func TestTimestampsSortAsText(t *testing.T) {
	early := time.Date(2024, 3, 1, 9, 0, 0, 5, time.UTC)
	late := time.Date(2024, 3, 1, 10, 0, 0, 40_000_000, time.FixedZone("x", 3600))
	a, _ := normalize(early).(string)
	b, _ := normalize(late).(string)
	assert.Less(t, a, b)

	var parsed time.Time
	require.NoError(t, parsed.UnmarshalJSON([]byte(`"`+a+`"`)))
	assert.True(t, early.Equal(parsed))
}

func TestEncodeDecodeFields(t *testing.T) {
	when := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	raw, err := encodeFields(docstore.Fields{"text": "hi", "timestamp": when, "userIds": []any{"1", "2"}})
	require.NoError(t, err)

	fields, err := decodeFields(raw)
	require.NoError(t, err)
	assert.Equal(t, "hi", fields["text"])
	assert.Equal(t, "2024-03-01T09:00:00.000000000Z", fields["timestamp"])

	var msg struct {
		Timestamp time.Time `doc:"timestamp"`
		UserIDs   []string  `doc:"userIds"`
	}
	require.NoError(t, docstore.Decode(fields, &msg))
	assert.True(t, when.Equal(msg.Timestamp))
	assert.Equal(t, []string{"1", "2"}, msg.UserIDs)
}
