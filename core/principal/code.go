package principal

import (
	"math/rand"
	"strconv"
	"time"
)

var (
	nowFunc  = time.Now // mockable
	randFunc = rand.Intn
)

// NewCode builds a human-readable external code for a principal of the given
// role: a role prefix, the last 8 digits of the current unix-millisecond
// timestamp and a 4-digit random suffix, e.g. STU-934820471234.
//
// The code is only probabilistically unique; the store enforces a unique
// constraint and callers retry on collision.
func NewCode(role Role) string {
	ms := strconv.FormatInt(nowFunc().UnixNano()/int64(time.Millisecond), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	n := 1000 + randFunc(9000)
	return role.CodePrefix() + ms + strconv.Itoa(n)
}
