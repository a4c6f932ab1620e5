package record

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataRecord_SetAndGet(t *testing.T) {
	r := New("Books")
	require.NoError(t, r.Set("Title", String("Learning Go")))
	require.NoError(t, r.Set("Price", Decimal(decimal.RequireFromString("38.50"))))
	require.NoError(t, r.Set("Raw", Bytes([]byte{0x00, 0x01})))
	require.NoError(t, r.Set("Tags", Strings([]string{"a", "b"})))

	assert.Equal(t, "Books", r.RecordType())
	assert.Equal(t, []string{"Title", "Price", "Raw", "Tags"}, r.Keys())

	title, err := r.GetString("Title")
	require.NoError(t, err)
	assert.Equal(t, "Learning Go", title)

	price, err := r.GetDecimal("Price")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("38.5")))

	raw, err := r.GetBytes("Raw")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01}, raw)

	tags, err := r.GetStrings("Tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tags)
}

func TestDataRecord_EmptyKey(t *testing.T) {
	r := New("X")
	err := r.Set("", String("v"))
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = r.GetString("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestDataRecord_TypeMismatch(t *testing.T) {
	r := New("X")
	require.NoError(t, r.Set("amount", Decimal(decimal.NewFromInt(10))))

	_, err := r.GetString("amount")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.Contains(t, err.Error(), "amount")

	_, err = r.GetBytes("missing")
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestDataRecord_OverwriteKeepsOrder(t *testing.T) {
	r := New("X")
	require.NoError(t, r.Set("a", String("1")))
	require.NoError(t, r.Set("b", String("2")))
	require.NoError(t, r.Set("a", String("3")))

	assert.Equal(t, []string{"a", "b"}, r.Keys())
	v, _ := r.GetString("a")
	assert.Equal(t, "3", v)

	r.Delete("a")
	assert.Equal(t, []string{"b"}, r.Keys())
	assert.False(t, r.Has("a"))
}

func TestFromMap(t *testing.T) {
	r, err := FromMap("Header", map[string]any{
		"dataKbn": "1",
		"count":   12,
		"raw":     []byte("x"),
	}, "dataKbn", "count", "raw")
	require.NoError(t, err)
	assert.Equal(t, []string{"dataKbn", "count", "raw"}, r.Keys())

	count, err := r.GetDecimal("count")
	require.NoError(t, err)
	assert.Equal(t, int64(12), count.IntPart())

	_, err = FromMap("Header", map[string]any{"flag": true})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestFormatDecimal_KeepsScale(t *testing.T) {
	assert.Equal(t, "38.50", FormatDecimal(decimal.RequireFromString("38.50")))
	assert.Equal(t, "-0.001", FormatDecimal(decimal.New(-1, -3)))
	assert.Equal(t, "500", FormatDecimal(decimal.New(5, 2)))
}

func TestDataRecord_JSON(t *testing.T) {
	r := New("Books")
	require.NoError(t, r.Set("Title", String("Go \"quoted\"")))
	require.NoError(t, r.Set("Price", Decimal(decimal.RequireFromString("38.50"))))
	require.NoError(t, r.Set("Raw", Bytes([]byte{0xFF, 0x00})))
	require.NoError(t, r.Set("Empty", Null()))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Price":38.50`)
	assert.Contains(t, string(data), `"recordType":"Books"`)

	var back DataRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "Books", back.RecordType())
	for _, k := range r.Keys() {
		want, _ := r.Get(k)
		got, ok := back.Get(k)
		require.True(t, ok, k)
		assert.True(t, want.Equal(got), "field %s: %#v != %#v", k, want, got)
	}
}

func TestDataRecord_JSONKeepsFieldOrder(t *testing.T) {
	var back DataRecord
	require.NoError(t, json.Unmarshal([]byte(`{"recordType":"Header","data":{"dataKbn":"1","Title":"Go","Price":38.50,"Author":["a","b"]}}`), &back))
	assert.Equal(t, []string{"dataKbn", "Title", "Price", "Author"}, back.Keys())

	data, err := json.Marshal(&back)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recordType":"Header","data":{"dataKbn":"1","Title":"Go","Price":38.50,"Author":["a","b"]}}`, string(data))
	assert.Less(t, strings.Index(string(data), `"Title"`), strings.Index(string(data), `"Author"`))

	var empty DataRecord
	require.NoError(t, json.Unmarshal([]byte(`{"recordType":"Empty","data":null}`), &empty))
	assert.Equal(t, 0, empty.Len())

	assert.Error(t, json.Unmarshal([]byte(`{"recordType":"Bad","data":[1]}`), &empty))
}

func TestSplitPath(t *testing.T) {
	elems, err := SplitPath("order.items[2].sku")
	require.NoError(t, err)
	assert.Equal(t, []PathElem{
		{Name: "order", Index: -1},
		{Name: "items", Index: 2},
		{Name: "sku", Index: -1},
	}, elems)
	assert.Equal(t, "order.items[2].sku", JoinPath(elems))

	for _, bad := range []string{"", "a..b", "a[x]", "[1]", "a[1"} {
		_, err := SplitPath(bad)
		assert.Error(t, err, bad)
	}
}
