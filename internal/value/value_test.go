package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompareValues_StrictEqual(t *testing.T) {
	assert.Equal(t, 0, CompareValues(Int(5), Int(5)))
	assert.Equal(t, 0, CompareValues(Text("a"), Text("a")))
}

func TestCompareValues_NullSortsBeforeNonNull(t *testing.T) {
	assert.Equal(t, -1, CompareValues(Null(), Text("a")))
	assert.Equal(t, 1, CompareValues(Text("a"), Null()))
	assert.Equal(t, 0, CompareValues(Null(), Null()))
}

func TestCompareValues_NumericCompare(t *testing.T) {
	assert.Equal(t, -1, CompareValues(Int(1), Float(2.5)))
	assert.Equal(t, 1, CompareValues(Float(10), Int(3)))
}

func TestCompareValues_TimestampCompare(t *testing.T) {
	earlier := Text("2026-01-01T00:00:00Z")
	later := Text("2026-06-01T00:00:00Z")
	assert.Equal(t, -1, CompareValues(earlier, later))
	assert.Equal(t, 1, CompareValues(later, earlier))
}

func TestCompareValues_DateKindAgainstTimestampText(t *testing.T) {
	d := Date(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	txt := Text("2026-06-01T00:00:00Z")
	assert.Equal(t, -1, CompareValues(d, txt))
}

func TestCompareValues_FallbackStringCompare(t *testing.T) {
	assert.Equal(t, -1, CompareValues(Text("Apple"), Text("banana")))
}

func TestValue_Equal_Arrays(t *testing.T) {
	a := Array(Int(1), Text("x"))
	b := Array(Int(1), Text("x"))
	c := Array(Int(1), Text("y"))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
