package cache

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/xraph/aegis"
)

// encMode uses Core Deterministic Encoding, so equal contexts produce the
// same bytes whatever their map iteration order.
var encMode cbor.EncMode

// decMode decodes cached results. Any-typed values decode as string keyed
// maps.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

type keyMaterial struct {
	UserID   string         `cbor:"u"`
	Action   string         `cbor:"a"`
	Resource string         `cbor:"r"`
	Context  map[string]any `cbor:"c,omitempty"`
}

// requestKey digests everything that can change a decision for one user.
// It reports false when the context holds values CBOR cannot encode; such
// requests are not cached.
func requestKey(req *aegis.CheckRequest) (string, bool) {
	data, err := encMode.Marshal(keyMaterial{
		UserID:   req.UserID,
		Action:   req.Action,
		Resource: req.Resource,
		Context:  req.Context,
	})
	if err != nil {
		return "", false
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

// copyResult returns a result the caller may modify freely.
func copyResult(r *aegis.CheckResult) *aegis.CheckResult {
	c := *r
	if r.MatchedBy != nil {
		c.MatchedBy = append([]aegis.MatchInfo(nil), r.MatchedBy...)
	}
	return &c
}
