// services/taxonomy_test.go
package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTaxonomy(t *testing.T) *TaxonomyService {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTaxonomyService(rdb)
}

func TestRegisterTargetsReplacesCategoryKeepsSiblings(t *testing.T) {
	svc := newTestTaxonomy(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterTargets(ctx, "core-plugin", map[string][]string{
		"blocks": {"minecraft:break:stone", "minecraft:break:dirt"},
		"mobs":   {"minecraft:kill:zombie"},
	}))
	// re-register only blocks with a new list
	require.NoError(t, svc.RegisterTargets(ctx, "core-plugin", map[string][]string{
		"blocks": {"minecraft:break:obsidian"},
	}))

	registry, err := svc.registeredTargets(ctx)
	require.NoError(t, err)
	require.Contains(t, registry, "core-plugin")
	assert.Equal(t, []string{"minecraft:break:obsidian"}, registry["core-plugin"]["blocks"])
	assert.Equal(t, []string{"minecraft:kill:zombie"}, registry["core-plugin"]["mobs"])
}

func TestRegisterTargetsNamespacesArePerPlugin(t *testing.T) {
	svc := newTestTaxonomy(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterTargets(ctx, "plugin-a", map[string][]string{
		"blocks": {"minecraft:break:stone"},
	}))
	require.NoError(t, svc.RegisterTargets(ctx, "plugin-b", map[string][]string{
		"blocks": {"minecraft:break:dirt"},
	}))

	registry, err := svc.registeredTargets(ctx)
	require.NoError(t, err)
	assert.Len(t, registry, 2)
	assert.Equal(t, []string{"minecraft:break:stone"}, registry["plugin-a"]["blocks"])
	assert.Equal(t, []string{"minecraft:break:dirt"}, registry["plugin-b"]["blocks"])
}

func TestRegisterTargetsEmptySubmissionIsNoop(t *testing.T) {
	svc := newTestTaxonomy(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterTargets(ctx, "quiet-plugin", map[string][]string{}))

	registry, err := svc.registeredTargets(ctx)
	require.NoError(t, err)
	assert.Empty(t, registry)
}

func TestNormalizeTargetsSeedsWebsiteKeys(t *testing.T) {
	out := NormalizeTargets(nil)

	for _, key := range []string{
		"WEBSITE_EVENT:POST_CREATED",
		"WEBSITE_EVENT:COMMENT_CREATED",
		"WEBSITE_EVENT:FRIEND_ADDED",
		"WEBSITE_EVENT:REPUTATION_CHANGED",
	} {
		category, ok := out[key]
		require.True(t, ok, key)
		assert.Empty(t, category)
	}
}

func TestNormalizeTargetsFamilies(t *testing.T) {
	registry := map[string]map[string][]string{
		"core": {
			"mobs":   {"minecraft:kill:zombie", "minecraft:kill:skeleton"},
			"blocks": {"minecraft:break:stone"},
		},
	}

	out := NormalizeTargets(registry)

	assert.Equal(t, []string{"minecraft:kill:zombie", "minecraft:kill:skeleton"},
		out["GAME_EVENT:PLAYER_KILL_ENTITY"]["mobs"])
	assert.Equal(t, []string{"minecraft:break:stone"},
		out["GAME_EVENT:BLOCK_BREAK"]["blocks"])
}

func TestNormalizeTargetsItemFanOut(t *testing.T) {
	registry := map[string]map[string][]string{
		"core": {
			"weapons": {"minecraft:item:sword"},
		},
	}

	out := NormalizeTargets(registry)

	_, stillThere := out["GAME_EVENT:ITEM_TARGET"]
	assert.False(t, stillThere, "transitional key must be removed after fan-out")
	for _, family := range []string{
		"GAME_EVENT:PLAYER_ITEM_BREAK",
		"GAME_EVENT:ITEM_CRAFT",
		"GAME_EVENT:ITEM_CONSUME",
		"GAME_EVENT:PLAYER_ENCHANT_ITEM",
	} {
		assert.Equal(t, []string{"minecraft:item:sword"}, out[family]["weapons"], family)
	}
}

func TestNormalizeTargetsActionFamilyHasNoLeaf(t *testing.T) {
	registry := map[string]map[string][]string{
		"fishing-plugin": {
			"custom": {"plugin:action:fish_caught"},
		},
	}

	out := NormalizeTargets(registry)

	category, ok := out["GAME_EVENT:FISH_CAUGHT"]
	require.True(t, ok)
	assert.Empty(t, category, "an action registration declares the family itself, not a target")
}

func TestNormalizeTargetsSkipsMalformedEntries(t *testing.T) {
	registry := map[string]map[string][]string{
		"core": {
			"blocks": {"break:toofew", "minecraft:use:portal", "minecraft:break:stone"},
		},
	}

	out := NormalizeTargets(registry)

	// under three segments and unknown keywords are dropped
	assert.Equal(t, []string{"minecraft:break:stone"}, out["GAME_EVENT:BLOCK_BREAK"]["blocks"])
	assert.NotContains(t, out, "GAME_EVENT:USE")
	assert.NotContains(t, out, "GAME_EVENT:PORTAL")
}

func TestNormalizeTargetsDeterministic(t *testing.T) {
	registry := map[string]map[string][]string{
		"plugin-b": {
			"weapons": {"minecraft:item:axe"},
			"mobs":    {"minecraft:kill:creeper"},
		},
		"plugin-a": {
			"weapons": {"minecraft:item:sword", "minecraft:item:axe"},
			"blocks":  {"minecraft:break:sand"},
		},
	}

	first := NormalizeTargets(registry)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, NormalizeTargets(registry))
	}
	// duplicates across namespaces collapse, order pinned by namespace sort
	assert.Equal(t, []string{"minecraft:item:sword", "minecraft:item:axe"},
		first["GAME_EVENT:ITEM_CRAFT"]["weapons"])
}

func TestTriggerLabel(t *testing.T) {
	assert.Equal(t, "Player Kill Entity", triggerLabel("GAME_EVENT:PLAYER_KILL_ENTITY"))
	assert.Equal(t, "Post Created", triggerLabel("WEBSITE_EVENT:POST_CREATED"))
	assert.Equal(t, "Block Break", triggerLabel("GAME_EVENT:BLOCK_BREAK"))
}
