package paramsource_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/netserve/paramsource"
)

type fakeCarrier struct {
	headers map[string]string
	paths   map[string]string
	queries map[string]string
	body    map[string]interface{}
}

func (f fakeCarrier) Header(name string) (string, bool) { v, ok := f.headers[name]; return v, ok }
func (f fakeCarrier) Path(name string) (string, bool)   { v, ok := f.paths[name]; return v, ok }
func (f fakeCarrier) Query(name string) (string, bool)  { v, ok := f.queries[name]; return v, ok }
func (f fakeCarrier) BodyField(name string) (interface{}, bool) {
	v, ok := f.body[name]
	return v, ok
}
func (f fakeCarrier) BodyAll() (interface{}, bool)      { return f.body, f.body != nil }
func (f fakeCarrier) File(name string) (interface{}, bool) { return nil, false }

func TestBindHeaderAndQuery(t *testing.T) {
	c := fakeCarrier{
		headers: map[string]string{"X-Request-Id": "abc"},
		queries: map[string]string{"page": "2"},
	}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Header, Name: "X-Request-Id"},
		{Source: paramsource.Query, Name: "page"},
	}

	res, err := paramsource.Bind(c, descs)
	require.Nil(t, err)
	require.Len(t, res.Values, 2)
	assert.Equal(t, "abc", res.Values[0])
	assert.Equal(t, "2", res.Values[1])
}

func TestBindMissingRequiredFails(t *testing.T) {
	c := fakeCarrier{}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Path, Name: "id", Required: true},
	}

	_, err := paramsource.Bind(c, descs)
	require.NotNil(t, err)
}

func TestBindMissingOptionalYieldsNil(t *testing.T) {
	c := fakeCarrier{}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Query, Name: "filter"},
	}

	res, err := paramsource.Bind(c, descs)
	require.Nil(t, err)
	require.Len(t, res.Values, 1)
	assert.Nil(t, res.Values[0])
}

func TestBindValidatorTagEnforced(t *testing.T) {
	c := fakeCarrier{queries: map[string]string{"email": "not-an-email"}}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Query, Name: "email", Validator: "required,email"},
	}

	_, err := paramsource.Bind(c, descs)
	require.NotNil(t, err)
}

func TestBindValidatorTagPasses(t *testing.T) {
	c := fakeCarrier{queries: map[string]string{"email": "a@b.com"}}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Query, Name: "email", Validator: "required,email"},
	}

	res, err := paramsource.Bind(c, descs)
	require.Nil(t, err)
	assert.Equal(t, "a@b.com", res.Values[0])
}

func TestBindBodyWholePayload(t *testing.T) {
	c := fakeCarrier{body: map[string]interface{}{"name": "widget", "qty": 3}}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Body},
	}

	res, err := paramsource.Bind(c, descs)
	require.Nil(t, err)
	m, ok := res.Values[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "widget", m["name"])
}

func TestBindCombinedPathWinsOverQueryAndBody(t *testing.T) {
	c := fakeCarrier{
		paths:   map[string]string{"id": "from-path"},
		queries: map[string]string{"id": "from-query"},
		body:    map[string]interface{}{"id": "from-body"},
	}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Combined, Name: "id"},
	}

	res, err := paramsource.Bind(c, descs)
	require.Nil(t, err)
	assert.Equal(t, "from-path", res.Values[0])
}

func TestBindCombinedBodyWinsOverQueryByDefault(t *testing.T) {
	c := fakeCarrier{
		queries: map[string]string{"id": "from-query"},
		body:    map[string]interface{}{"id": "from-body"},
	}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Combined, Name: "id"},
	}

	res, err := paramsource.Bind(c, descs)
	require.Nil(t, err)
	assert.Equal(t, "from-body", res.Values[0])
}

func TestBindCombinedQueryOverridesBodyWhenConfigured(t *testing.T) {
	c := fakeCarrier{
		queries: map[string]string{"id": "from-query"},
		body:    map[string]interface{}{"id": "from-body"},
	}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Combined, Name: "id", QueryOverridesBody: true},
	}

	res, err := paramsource.Bind(c, descs)
	require.Nil(t, err)
	assert.Equal(t, "from-query", res.Values[0])
}

func TestBindCombinedFallsBackToQueryWhenNoBody(t *testing.T) {
	c := fakeCarrier{
		queries: map[string]string{"id": "from-query"},
	}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Combined, Name: "id"},
	}

	res, err := paramsource.Bind(c, descs)
	require.Nil(t, err)
	assert.Equal(t, "from-query", res.Values[0])
}

func TestBindUnknownSourceErrors(t *testing.T) {
	c := fakeCarrier{}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Source(99), Name: "x"},
	}

	_, err := paramsource.Bind(c, descs)
	require.NotNil(t, err)
}

func TestBindStopsOnFirstFailure(t *testing.T) {
	c := fakeCarrier{}

	descs := []paramsource.Descriptor{
		{Source: paramsource.Path, Name: "missing", Required: true},
		{Source: paramsource.Header, Name: "never-reached"},
	}

	res, err := paramsource.Bind(c, descs)
	require.NotNil(t, err)
	assert.Empty(t, res.Values)
}
