package history

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndFilterByTag(t *testing.T) {
	req := require.New(t)
	log := New()

	// Given a mix of outgoing and incoming lines
	log.Append(Incoming, "You joined")
	log.Append(Outgoing, "10:00: alice: hi")
	log.Append(Incoming, "bob has joined")
	log.Append(Outgoing, "10:01: alice: bye")

	// Then order is preserved inside each tag
	req.Equal(4, log.Len())
	req.Equal([]string{"10:00: alice: hi", "10:01: alice: bye"}, log.FilterByTag(Outgoing))
	req.Equal([]string{"You joined", "bob has joined"}, log.FilterByTag(Incoming))
	req.Equal("[outgoing] 10:00: alice: hi", log.Lines()[1])
}

func TestLog_EntriesIsACopy(t *testing.T) {
	req := require.New(t)
	log := New()
	log.Append(Incoming, "a")

	entries := log.Entries()
	entries[0].Line = "changed"

	req.Equal("a", log.Entries()[0].Line)
}

func TestEncode_RoundTrip(t *testing.T) {
	req := require.New(t)

	lines := []string{
		"[outgoing] 17.10.2026 10:00:00: alice: a:b:c",
		"[incoming] bob [story]:[\"nested\"]",
		"<tags> & \"quotes\"",
		"",
	}
	payload, err := Encode(lines)
	req.NoError(err)
	req.NotContains(payload, "\n")

	decoded, err := Deserialize(payload)
	req.NoError(err)
	req.Equal(lines, decoded)

	again, err := Encode(decoded)
	req.NoError(err)
	req.Equal(payload, again)
}

func TestEncode_EmbeddedLineBreakStaysOnOneLine(t *testing.T) {
	req := require.New(t)

	payload, err := Encode([]string{"one\ntwo"})
	req.NoError(err)
	req.NotContains(payload, "\n")

	decoded, err := Deserialize(payload)
	req.NoError(err)
	req.Equal([]string{"one\ntwo"}, decoded)
}

func TestEncode_Empty(t *testing.T) {
	req := require.New(t)

	payload, err := Encode(nil)
	req.NoError(err)
	req.Equal("[]", payload)

	decoded, err := Deserialize(payload)
	req.NoError(err)
	req.Empty(decoded)
}

func TestDeserialize_Corrupt(t *testing.T) {
	req := require.New(t)

	for _, payload := range []string{"", "null", "{}", "[1,2]", `["a"`, "garbage", `"a"`} {
		_, err := Deserialize(payload)
		req.ErrorIs(err, ErrCorruptHistory, payload)
	}
}

func TestLog_SerializeWithinDropsOldest(t *testing.T) {
	req := require.New(t)
	log := New()
	log.Append(Outgoing, "first line that is rather long")
	log.Append(Outgoing, "second")

	full, err := log.Serialize()
	req.NoError(err)

	payload, err := log.SerializeWithin(len(full) - 1)
	req.NoError(err)
	decoded, err := Deserialize(payload)
	req.NoError(err)
	req.Equal([]string{"[outgoing] second"}, decoded)

	unlimited, err := log.SerializeWithin(0)
	req.NoError(err)
	req.Equal(full, unlimited)
}
