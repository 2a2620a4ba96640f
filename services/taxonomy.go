// services/taxonomy.go
package services

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	configVersion    = "2.0.0-core"
	targetsKeyPrefix = "achievement_targets:"
)

// Triggers that originate on the website itself. These stay visible in the
// authoring UI even with zero registered game targets, because internal code
// paths (posts, comments, votes, friendships) populate them at runtime.
var websiteTriggers = []string{
	"REPUTATION_CHANGED",
	"POST_CREATED",
	"COMMENT_CREATED",
	"FRIEND_ADDED",
	"CUSTOM_API_TRIGGER",
}

// Keyword→family classification for registered target strings (second
// colon segment). ACTION is handled apart: its family is the third segment.
var actionFamilies = map[string]string{
	"KILL":  "PLAYER_KILL_ENTITY",
	"BREAK": "BLOCK_BREAK",
	"ITEM":  "ITEM_TARGET",
}

// A single "item" vocabulary is reused across these four in-game trigger
// families; the transitional ITEM_TARGET key fans out into them.
var itemFanOutFamilies = []string{
	"PLAYER_ITEM_BREAK",
	"ITEM_CRAFT",
	"ITEM_CONSUME",
	"PLAYER_ENCHANT_ITEM",
}

// TargetMap is {trigger key → category → ordered target identifiers}.
type TargetMap map[string]map[string][]string

// TaxonomyService owns the per-plugin registry of achievable targets and the
// normalization that turns it into the taxonomy the authoring UI consumes.
// The registry lives in Redis, one hash per plugin namespace: a registration
// replaces the categories it names and leaves the namespace's other
// categories untouched.
type TaxonomyService struct {
	RDB *redis.Client
}

func NewTaxonomyService(rdb *redis.Client) *TaxonomyService {
	return &TaxonomyService{RDB: rdb}
}

// RegisterTargets merges one plugin's submission into the registry. HSET of
// all categories in one call keeps concurrent registrations from different
// plugins from losing updates.
func (s *TaxonomyService) RegisterTargets(ctx context.Context, pluginName string, targets map[string][]string) error {
	categories := make([]string, 0, len(targets))
	fields := make(map[string]interface{}, len(targets))
	for category, items := range targets {
		encoded, err := json.Marshal(items)
		if err != nil {
			return err
		}
		fields[category] = encoded
		categories = append(categories, category)
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(categories)
	log.Printf("[TARGETS] Registering targets from plugin %q, categories: [%s]", pluginName, strings.Join(categories, ", "))
	return s.RDB.HSet(ctx, targetsKeyPrefix+pluginName, fields).Err()
}

// registeredTargets loads the full registry: plugin namespace → category →
// target identifiers.
func (s *TaxonomyService) registeredTargets(ctx context.Context) (map[string]map[string][]string, error) {
	keys, err := s.RDB.Keys(ctx, targetsKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}

	registry := make(map[string]map[string][]string, len(keys))
	for _, key := range keys {
		raw, err := s.RDB.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		namespace := strings.TrimPrefix(key, targetsKeyPrefix)
		categories := make(map[string][]string, len(raw))
		for category, encoded := range raw {
			var items []string
			if err := json.Unmarshal([]byte(encoded), &items); err != nil {
				log.Printf("[TARGETS] Corrupt target list for %s/%s, skipping: %v", namespace, category, err)
				continue
			}
			categories[category] = items
		}
		registry[namespace] = categories
	}
	return registry, nil
}

// NormalizeTargets reshapes the raw registry into the flat
// {trigger key → category → targets} taxonomy. Pure: output depends only on
// the input registry, and iteration order is pinned so identical input
// yields identical output.
func NormalizeTargets(registry map[string]map[string][]string) TargetMap {
	out := TargetMap{
		"WEBSITE_EVENT:POST_CREATED":       {},
		"WEBSITE_EVENT:COMMENT_CREATED":    {},
		"WEBSITE_EVENT:FRIEND_ADDED":       {},
		"WEBSITE_EVENT:REPUTATION_CHANGED": {},
	}

	for _, namespace := range sortedKeys(registry) {
		for _, category := range sortedKeys(registry[namespace]) {
			for _, item := range registry[namespace][category] {
				parts := strings.Split(item, ":")
				if len(parts) < 3 {
					continue
				}

				action := strings.ToUpper(parts[1])
				family := ""
				leaf := ""
				if f, ok := actionFamilies[action]; ok {
					family = f
					leaf = item
				} else if action == "ACTION" {
					// the family itself is the registered thing; no leaf
					family = strings.ToUpper(parts[2])
				}
				if family == "" {
					continue
				}

				triggerKey := "GAME_EVENT:" + family
				if out[triggerKey] == nil {
					out[triggerKey] = map[string][]string{}
				}
				if leaf != "" {
					out[triggerKey][category] = append(out[triggerKey][category], leaf)
				}
			}
		}
	}

	if itemTargets, ok := out["GAME_EVENT:ITEM_TARGET"]; ok {
		for _, family := range itemFanOutFamilies {
			key := "GAME_EVENT:" + family
			if out[key] == nil {
				out[key] = map[string][]string{}
			}
			for _, category := range sortedKeys(itemTargets) {
				out[key][category] = mergeUnique(out[key][category], itemTargets[category])
			}
		}
		delete(out, "GAME_EVENT:ITEM_TARGET")
	}

	return out
}

// ConfigData is the admin endpoint feeding the achievement authoring UI.
func (s *TaxonomyService) ConfigData(c *fiber.Ctx) error {
	registry, err := s.registeredTargets(c.Context())
	if err != nil {
		log.Printf("[TARGETS] Failed to load target registry: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load target registry"})
	}

	targets := NormalizeTargets(registry)

	labels := make(map[string]string, len(targets))
	for key := range targets {
		labels[key] = triggerLabel(key)
	}

	return c.JSON(fiber.Map{
		"version":        configVersion,
		"triggers":       websiteTriggers,
		"targets":        targets,
		"trigger_labels": labels,
	})
}

// triggerLabel turns "GAME_EVENT:PLAYER_KILL_ENTITY" into "Player Kill Entity".
func triggerLabel(triggerKey string) string {
	family := triggerKey
	if i := strings.Index(triggerKey, ":"); i >= 0 {
		family = triggerKey[i+1:]
	}
	words := strings.ToLower(strings.ReplaceAll(family, "_", " "))
	return cases.Title(language.English).String(words)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mergeUnique(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
