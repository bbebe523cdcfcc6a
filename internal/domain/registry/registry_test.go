package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	model "go_mock_resolver/internal/domain/model/mock_rule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRule(id, path string) *model.MockRule {
	return &model.MockRule{
		ID:      id,
		Name:    id,
		Enabled: true,
		Match:   model.MatchSpec{Path: path},
		Response: model.ResponseSpec{
			StatusCode: 200,
			Content:    model.Object(map[string]model.Value{"id": model.String(id)}),
		},
	}
}

func TestRegistryAddAssignsSequence(t *testing.T) {
	reg := New()

	first, err := reg.Add(testRule("a", "/a"))
	require.NoError(t, err)
	second, err := reg.Add(testRule("b", "/b"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = reg.Add(testRule("a", "/other"))
	assert.True(t, errors.Is(err, model.ErrDuplicateRule))
}

func TestRegistryRejectsInvalidRule(t *testing.T) {
	reg := New()
	bad := testRule("bad", "/a")
	bad.Response.DelayRange = []float64{3, 1}

	_, err := reg.Add(bad)
	assert.True(t, errors.Is(err, model.ErrRuleConfigInvalid))
	assert.Equal(t, 0, reg.Snapshot().Len(), "invalid rule is never stored")

	// 失败的注册不消耗序号
	ok, err := reg.Add(testRule("ok", "/a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ok.Seq)
}

func TestRegistryUpdateKeepsSeq(t *testing.T) {
	reg := New()
	_, err := reg.Add(testRule("a", "/a"))
	require.NoError(t, err)
	_, err = reg.Add(testRule("b", "/b"))
	require.NoError(t, err)

	changed := testRule("a", "/a2")
	changed.Seq = 99
	updated, err := reg.Update(changed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Seq)
	assert.Equal(t, "/a2", updated.Match.Path)

	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "/a2", got.Match.Path)

	_, err = reg.Update(testRule("missing", "/m"))
	assert.True(t, errors.Is(err, model.ErrRuleNotFound))

	invalid := testRule("a", "")
	_, err = reg.Update(invalid)
	assert.True(t, errors.Is(err, model.ErrRuleConfigInvalid))
	got, _ = reg.Get("a")
	assert.Equal(t, "/a2", got.Match.Path, "failed update leaves the old rule in place")
}

func TestRegistryRemoveAndList(t *testing.T) {
	reg := New()
	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Add(testRule(id, "/"+id))
		require.NoError(t, err)
	}
	disabled := testRule("d", "/d")
	disabled.Enabled = false
	disabled.Tags = []string{"beta"}
	_, err := reg.Add(disabled)
	require.NoError(t, err)

	removed, err := reg.Remove("b")
	require.NoError(t, err)
	assert.Equal(t, "b", removed.ID)
	_, err = reg.Remove("b")
	assert.True(t, errors.Is(err, model.ErrRuleNotFound))

	ids := func(rules []*model.MockRule) []string {
		out := make([]string, 0, len(rules))
		for _, r := range rules {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids(reg.List(nil)))

	enabled := true
	assert.Equal(t, []string{"a", "c"}, ids(reg.List(&model.RuleFilter{IsEnabled: &enabled})))
	tag := "beta"
	assert.Equal(t, []string{"d"}, ids(reg.List(&model.RuleFilter{Tag: &tag})))
	assert.Len(t, reg.Snapshot().Enabled(), 2)
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	reg := New()
	_, err := reg.Add(testRule("a", "/a"))
	require.NoError(t, err)

	got, err := reg.Get("a")
	require.NoError(t, err)
	got.Match.Path = "/mutated"
	got.Tags = append(got.Tags, "x")

	again, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "/a", again.Match.Path)
	assert.Empty(t, again.Tags)
}

func TestRegistryLoadPreservesSeq(t *testing.T) {
	reg := New()
	r1 := testRule("late", "/late")
	r1.Seq = 7
	r2 := testRule("early", "/early")
	r2.Seq = 3
	require.NoError(t, reg.Load([]*model.MockRule{r1, r2}))

	list := reg.List(nil)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ID)
	assert.Equal(t, "late", list[1].ID)

	added, err := reg.Add(testRule("new", "/new"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), added.Seq)

	err = reg.Load([]*model.MockRule{testRule("new", "/dup")})
	assert.True(t, errors.Is(err, model.ErrDuplicateRule))
}

func TestRegistryConcurrentReadersSeeWholeRules(t *testing.T) {
	reg := New()
	_, err := reg.Add(testRule("seed", "/seed"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, c := range reg.Snapshot().Enabled() {
					// 已发布的规则必须完整：谓词、Seq、响应内容都已就绪
					if c.Rule == nil || c.Seq() == 0 || len(c.Predicates()) == 0 {
						t.Errorf("observed half-initialized rule %+v", c)
						return
					}
					if _, ok := c.Rule.Response.Content.AsObject(); !ok {
						t.Errorf("rule %s published without content", c.ID())
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		_, err := reg.Add(testRule(fmt.Sprintf("r-%d", i), fmt.Sprintf("/r/%d", i)))
		require.NoError(t, err)
		if i%3 == 0 {
			_, err = reg.Remove(fmt.Sprintf("r-%d", i))
			require.NoError(t, err)
		}
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 1+200-67, reg.Snapshot().Len())
}
