package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogin_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ascii", in: "alice", want: "al***"},
		{name: "short", in: "ab", want: "***"},
		{name: "empty", in: "", want: "***"},
		{name: "unicode", in: "юзер", want: "юз***"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Login(tt.in))
		})
	}
}

func TestToken_Fingerprint(t *testing.T) {
	t.Parallel()

	raw := "eyJhbGciOiJIUzI1NiJ9.eyJ1c2VyX2lkIjoxfQ.sig"
	fp := Token(raw)

	require.True(t, strings.HasPrefix(fp, "tok:"))
	require.Len(t, fp, len("tok:")+8)
	require.NotContains(t, fp, raw)
	require.Equal(t, fp, Token(raw))
	require.NotEqual(t, fp, Token(raw+"x"))
	require.Equal(t, "[EMPTY_TOKEN]", Token(""))
}

func TestPassword_Literal(t *testing.T) {
	t.Parallel()
	require.Equal(t, "[REDACTED_PASSWORD]", Password())
}
