package report

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineAndColumnFromOffset(t *testing.T) {
	r := NewReporter()
	r.SetSource("one\ntwo\nthree\n")
	r.AddLexError(0, "first")
	r.AddParseError(5, "second")
	r.AddSemanticError(9, "third")

	errs := r.Errors()
	require.Len(t, errs, 3)
	require.Equal(t, 1, errs[0].Line)
	require.Equal(t, 1, errs[0].Column)
	require.Equal(t, 2, errs[1].Line)
	require.Equal(t, 2, errs[1].Column)
	require.Equal(t, 3, errs[2].Line)
	require.Equal(t, 2, errs[2].Column)
}

func TestErrorsRecordedBeforeSourceGetPositions(t *testing.T) {
	r := NewReporter()
	r.AddLexError(4, "early")
	r.SetSource("ab\ncd")
	require.Equal(t, 2, r.Errors()[0].Line)
	require.Equal(t, 2, r.Errors()[0].Column)
}

func TestOKAndErr(t *testing.T) {
	r := NewReporter()
	require.True(t, r.OK())
	require.NoError(t, r.Err())
	r.SetSource("x")
	r.AddResourceError(0, "buffer exhausted")
	require.False(t, r.OK())
	require.Error(t, r.Err())
	require.Contains(t, r.Err().Error(), "resource")
}

func TestInternalError(t *testing.T) {
	err := Internalf("resolver", "phi v%d unmapped", 7)
	require.Contains(t, err.Error(), "resolver")
	require.Contains(t, err.Error(), "phi v7 unmapped")
}
