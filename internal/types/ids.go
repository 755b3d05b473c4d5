// internal/types/ids.go
package types

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionID string
type MessageID string

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID returns a client-generated id of the form
// session_<unix millis>_<9 base36 chars>.
func NewSessionID() SessionID {
	var sb strings.Builder
	sb.WriteString("session_")
	sb.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	sb.WriteByte('_')
	for i := 0; i < 9; i++ {
		sb.WriteByte(base36[rand.IntN(len(base36))])
	}
	return SessionID(sb.String())
}

func NewMessageID() MessageID {
	return MessageID("msg_" + uuid.New().String())
}
