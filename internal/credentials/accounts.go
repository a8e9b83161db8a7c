package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
)

// Descriptor is the opaque login payload for one account. It is forwarded to
// the login endpoint verbatim and never interpreted.
type Descriptor = json.RawMessage

// LoadAccounts reads the account store: a JSON array with one descriptor per
// account. Position in the array is the account's identity for the run.
func LoadAccounts(path string) ([]Descriptor, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierr.Wrap(clierr.CodeInput, fmt.Sprintf("account store %s not found", path), err)
		}
		return nil, clierr.Wrap(clierr.CodeInput, "read account store", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, clierr.Wrap(clierr.CodeInput, fmt.Sprintf("account store %s is not a JSON array", path), err)
	}
	if len(raw) == 0 {
		return nil, clierr.New(clierr.CodeInput, fmt.Sprintf("account store %s has no accounts", path))
	}
	out := make([]Descriptor, 0, len(raw))
	for i, item := range raw {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil, clierr.New(clierr.CodeInput, fmt.Sprintf("account %d has an empty descriptor", i+1))
		}
		out = append(out, Descriptor(trimmed))
	}
	return out, nil
}
