// Package record provides the entity types synchronized between the local
// cache and the remote field-sales API.
//
// Records move between three representations: the JSON the server returns,
// the rows the local store persists, and the in-memory structs the gateways
// hand to callers. All shape normalization (flexible identifiers, legacy
// product-line encodings, date-only timestamps) happens here, at the decode
// boundary, so the rest of the system only ever sees canonical structures.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers generated locally for records the server
// has not confirmed yet.
const TempIDPrefix = "temp_"

// ID identifies a record. Canonical identifiers are server-assigned positive
// integers; records created while offline carry a client-generated temporary
// string until the server confirms them.
//
// The JSON codec accepts both encodings (the server sends numbers, queued
// offline payloads carry strings) and marshals back to whichever form the
// value represents.
type ID string

// FromInt converts a server-assigned integer identifier to an ID.
func FromInt(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

// IsTemp reports whether the identifier is a client-generated placeholder.
func (id ID) IsTemp() bool {
	return strings.HasPrefix(string(id), TempIDPrefix)
}

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool {
	return id == ""
}

// Int returns the canonical integer value of the identifier.
// The second result is false for temporary or unset identifiers.
func (id ID) Int() (int64, bool) {
	if id.IsZero() || id.IsTemp() {
		return 0, false
	}
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String returns the identifier in its wire form.
func (id ID) String() string {
	return string(id)
}

// MarshalJSON encodes canonical identifiers as numbers and temporary
// identifiers as strings, matching what the server and queued payloads
// expect.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if n, ok := id.Int(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a number, a string, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		*id = ID(str)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", s, err)
	}
	*id = FromInt(n)
	return nil
}

// IDGenerator produces temporary identifiers for records created before the
// server has assigned a canonical one. Injected so tests can supply
// deterministic values.
type IDGenerator interface {
	TempID() ID
}

// tempIDGenerator is the production generator: creation timestamp plus a
// random suffix, collision-resistant across restarts.
type tempIDGenerator struct {
	now func() time.Time
}

// NewIDGenerator returns the default temporary-id generator.
func NewIDGenerator() IDGenerator {
	return &tempIDGenerator{now: time.Now}
}

// TempID returns an identifier of the form temp_<unix-millis>_<suffix>.
func (g *tempIDGenerator) TempID() ID {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return ID(fmt.Sprintf("%s%d_%s", TempIDPrefix, g.now().UnixMilli(), suffix))
}

// StaticIDGenerator returns a generator that yields the given identifiers in
// order, panicking when exhausted. Test helper.
func StaticIDGenerator(ids ...ID) IDGenerator {
	return &staticIDGenerator{ids: ids}
}

type staticIDGenerator struct {
	ids []ID
	n   int
}

func (g *staticIDGenerator) TempID() ID {
	if g.n >= len(g.ids) {
		panic("staticIDGenerator: out of ids")
	}
	id := g.ids[g.n]
	g.n++
	return id
}
