package outputlimit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/outputlimit"
)

func TestSizeOf_Nil(t *testing.T) {
	require.Equal(t, 0, outputlimit.SizeOf(nil))
}

func TestSizeOf_String(t *testing.T) {
	require.Equal(t, 5, outputlimit.SizeOf("hello"))
}

func TestSizeOf_Array(t *testing.T) {
	v := []interface{}{"ab", "cde"}
	require.Equal(t, 5, outputlimit.SizeOf(v))
}

func TestSizeOf_Map(t *testing.T) {
	v := map[string]interface{}{"a": 1, "b": 2}
	size := outputlimit.SizeOf(v)
	require.Greater(t, size, 0)
}

func TestCheck_UnderLimit(t *testing.T) {
	l := outputlimit.New(100)
	size, over := l.Check("short")
	require.Equal(t, 5, size)
	require.False(t, over)
}

func TestCheck_OverLimit(t *testing.T) {
	l := outputlimit.New(10)
	_, over := l.Check(strings.Repeat("a", 100))
	require.True(t, over)
}

func TestTruncate_StringStaysWithinBudget(t *testing.T) {
	l := outputlimit.New(30)
	out, truncated := l.Truncate(strings.Repeat("x", 100))
	require.True(t, truncated)

	s := out.(string)
	require.LessOrEqual(t, len(s), 30)
	require.Contains(t, s, "truncated")
}

func TestTruncate_ArrayEndsWithNotice(t *testing.T) {
	l := outputlimit.New(20)
	arr := []interface{}{"aaaaa", "bbbbb", "ccccc", "ddddd", "eeeee"}
	out, truncated := l.Truncate(arr)
	require.True(t, truncated)

	result := out.([]interface{})
	require.Equal(t, "[... truncated ...]", result[len(result)-1])
}

func TestTruncate_ObjectMarksRemainder(t *testing.T) {
	l := outputlimit.New(15)
	obj := map[string]interface{}{
		"a": strings.Repeat("1", 20),
		"b": strings.Repeat("2", 20),
	}
	out, truncated := l.Truncate(obj)
	require.True(t, truncated)

	result := out.(map[string]interface{})
	require.Contains(t, result, "_truncated")
}

func TestTruncate_NoopWhenUnderLimit(t *testing.T) {
	l := outputlimit.New(1000)
	out, truncated := l.Truncate("small")
	require.False(t, truncated)
	require.Equal(t, "small", out)
}

func TestSizeOf_NumberAndBool(t *testing.T) {
	require.Equal(t, len("42"), outputlimit.SizeOf(42))
	require.Equal(t, len("true"), outputlimit.SizeOf(true))
}

func TestTruncate_UnshrinkableTypeReportsFalse(t *testing.T) {
	l := outputlimit.New(1)
	out, truncated := l.Truncate(123456789)
	require.False(t, truncated)
	require.Equal(t, 123456789, out)
}
