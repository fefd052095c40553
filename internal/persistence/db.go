// Package persistence provides archives for town snapshots: SQLite via
// sqlx, and Redis.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/village-mind/internal/awareness"
	"github.com/talgya/village-mind/internal/engine"
	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/social"
	"github.com/talgya/village-mind/internal/townevent"
	"github.com/talgya/village-mind/internal/world"
)

// DB wraps a SQLite connection for town state persistence.
type DB struct {
	conn *sqlx.DB
}

var _ engine.Archive = (*DB)(nil)

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS villagers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		dest_x REAL,
		dest_y REAL,
		cooldown_until INTEGER NOT NULL,
		spawn_tick INTEGER NOT NULL,
		spawned_aware INTEGER NOT NULL,
		needs_json TEXT NOT NULL,
		mood_valence REAL NOT NULL DEFAULT 0,
		mood_arousal REAL NOT NULL DEFAULT 0,
		personality_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memories (
		owner INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		subject TEXT NOT NULL,
		kind TEXT NOT NULL,
		valence REAL NOT NULL,
		importance REAL NOT NULL,
		base_importance REAL NOT NULL,
		created_tick INTEGER NOT NULL,
		reinforced_tick INTEGER NOT NULL,
		decay_rate REAL NOT NULL,
		reinforcements INTEGER NOT NULL,
		content TEXT NOT NULL,
		long_term INTEGER NOT NULL,
		PRIMARY KEY (owner, seq)
	);

	CREATE TABLE IF NOT EXISTS relationships (
		from_id INTEGER NOT NULL,
		to_id INTEGER NOT NULL,
		affinity REAL NOT NULL,
		trust REAL NOT NULL,
		interactions INTEGER NOT NULL,
		last_tick INTEGER NOT NULL,
		PRIMARY KEY (from_id, to_id)
	);

	CREATE TABLE IF NOT EXISTS awareness (
		id INTEGER PRIMARY KEY,
		level INTEGER NOT NULL,
		score REAL NOT NULL,
		proneness REAL NOT NULL,
		last_evidence INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS town_events (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		open_tick INTEGER NOT NULL,
		deadline INTEGER NOT NULL,
		cancelled INTEGER NOT NULL,
		votes_json TEXT NOT NULL,
		tally_json TEXT
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner);
	CREATE INDEX IF NOT EXISTS idx_town_events_deadline ON town_events(deadline);
	`
	_, err := db.conn.Exec(schema)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveSnapshot writes the whole town in one transaction (full replace).
func (db *DB) SaveSnapshot(ctx context.Context, s *engine.Snapshot) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := saveVillagers(ctx, tx, s.Villagers); err != nil {
		return fmt.Errorf("save villagers: %w", err)
	}
	if err := saveMemories(ctx, tx, s.Memories); err != nil {
		return fmt.Errorf("save memories: %w", err)
	}
	if err := saveRelationships(ctx, tx, s.Relationships); err != nil {
		return fmt.Errorf("save relationships: %w", err)
	}
	if err := saveAwareness(ctx, tx, s.Awareness); err != nil {
		return fmt.Errorf("save awareness: %w", err)
	}
	if err := saveEvents(ctx, tx, s.Events); err != nil {
		return fmt.Errorf("save town events: %w", err)
	}

	meta := map[string]string{
		"last_tick": strconv.FormatUint(s.Tick, 10),
		"seed":      strconv.FormatInt(s.Seed, 10),
		"next_id":   strconv.FormatUint(uint64(s.NextID), 10),
		"saved_at":  s.SavedAt.Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Debug("town state saved", "tick", s.Tick, "villagers", len(s.Villagers))
	return nil
}

func saveVillagers(ctx context.Context, tx *sqlx.Tx, villagers []engine.VillagerState) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM villagers"); err != nil {
		return err
	}
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO villagers
		(id, name, pos_x, pos_y, dest_x, dest_y, cooldown_until, spawn_tick,
		 spawned_aware, needs_json, mood_valence, mood_arousal, personality_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range villagers {
		needsJSON, _ := json.Marshal(v.Needs)
		persJSON, _ := json.Marshal(v.Personality)
		var destX, destY sql.NullFloat64
		if v.Destination != nil {
			destX = sql.NullFloat64{Float64: v.Destination.X, Valid: true}
			destY = sql.NullFloat64{Float64: v.Destination.Y, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			int64(v.ID), v.Name, v.Position.X, v.Position.Y, destX, destY,
			int64(v.CooldownUntil), int64(v.SpawnTick), boolInt(v.SpawnedAware),
			string(needsJSON), v.Mood.Valence, v.Mood.Arousal, string(persJSON),
		)
		if err != nil {
			return fmt.Errorf("insert villager %d: %w", v.ID, err)
		}
	}
	return nil
}

func saveMemories(ctx context.Context, tx *sqlx.Tx, memories []engine.MemoryState) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM memories"); err != nil {
		return err
	}
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO memories
		(owner, seq, subject, kind, valence, importance, base_importance,
		 created_tick, reinforced_tick, decay_rate, reinforcements, content, long_term)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range memories {
		for seq, r := range m.Records {
			_, err := stmt.ExecContext(ctx,
				int64(m.Owner), seq, string(r.Subject), string(r.Kind),
				r.Valence, r.Importance, r.BaseImportance,
				int64(r.CreatedTick), int64(r.ReinforcedTick), r.DecayRate,
				r.Reinforcements, r.Content, boolInt(r.LongTerm),
			)
			if err != nil {
				return fmt.Errorf("insert memory %d/%d: %w", m.Owner, seq, err)
			}
		}
	}
	return nil
}

func saveRelationships(ctx context.Context, tx *sqlx.Tx, rels []social.Relationship) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM relationships"); err != nil {
		return err
	}
	for _, r := range rels {
		_, err := tx.ExecContext(ctx, `INSERT INTO relationships
			(from_id, to_id, affinity, trust, interactions, last_tick)
			VALUES (?, ?, ?, ?, ?, ?)`,
			int64(r.From), int64(r.To), r.Affinity, r.Trust, r.Interactions, int64(r.LastTick),
		)
		if err != nil {
			return fmt.Errorf("insert relationship %d->%d: %w", r.From, r.To, err)
		}
	}
	return nil
}

func saveAwareness(ctx context.Context, tx *sqlx.Tx, states []awareness.State) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM awareness"); err != nil {
		return err
	}
	for _, s := range states {
		_, err := tx.ExecContext(ctx, `INSERT INTO awareness
			(id, level, score, proneness, last_evidence)
			VALUES (?, ?, ?, ?, ?)`,
			int64(s.ID), int(s.Level), s.Score, s.Proneness, int64(s.LastEvidence),
		)
		if err != nil {
			return fmt.Errorf("insert awareness %d: %w", s.ID, err)
		}
	}
	return nil
}

func saveEvents(ctx context.Context, tx *sqlx.Tx, events []townevent.Event) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM town_events"); err != nil {
		return err
	}
	for _, e := range events {
		votesJSON, _ := json.Marshal(e.Votes)
		var tallyJSON sql.NullString
		if e.Tally != nil {
			b, _ := json.Marshal(e.Tally)
			tallyJSON = sql.NullString{String: string(b), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO town_events
			(id, description, open_tick, deadline, cancelled, votes_json, tally_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Description, int64(e.OpenTick), int64(e.Deadline), boolInt(e.Cancelled),
			string(votesJSON), tallyJSON,
		)
		if err != nil {
			return fmt.Errorf("insert town event %s: %w", e.ID, err)
		}
	}
	return nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

type villagerRow struct {
	ID              int64           `db:"id"`
	Name            string          `db:"name"`
	PosX            float64         `db:"pos_x"`
	PosY            float64         `db:"pos_y"`
	DestX           sql.NullFloat64 `db:"dest_x"`
	DestY           sql.NullFloat64 `db:"dest_y"`
	CooldownUntil   int64           `db:"cooldown_until"`
	SpawnTick       int64           `db:"spawn_tick"`
	SpawnedAware    int             `db:"spawned_aware"`
	NeedsJSON       string          `db:"needs_json"`
	MoodValence     float64         `db:"mood_valence"`
	MoodArousal     float64         `db:"mood_arousal"`
	PersonalityJSON string          `db:"personality_json"`
}

type memoryRow struct {
	Owner          int64   `db:"owner"`
	Seq            int     `db:"seq"`
	Subject        string  `db:"subject"`
	Kind           string  `db:"kind"`
	Valence        float64 `db:"valence"`
	Importance     float64 `db:"importance"`
	BaseImportance float64 `db:"base_importance"`
	CreatedTick    int64   `db:"created_tick"`
	ReinforcedTick int64   `db:"reinforced_tick"`
	DecayRate      float64 `db:"decay_rate"`
	Reinforcements int     `db:"reinforcements"`
	Content        string  `db:"content"`
	LongTerm       int     `db:"long_term"`
}

type relationshipRow struct {
	FromID       int64   `db:"from_id"`
	ToID         int64   `db:"to_id"`
	Affinity     float64 `db:"affinity"`
	Trust        float64 `db:"trust"`
	Interactions int     `db:"interactions"`
	LastTick     int64   `db:"last_tick"`
}

type awarenessRow struct {
	ID           int64   `db:"id"`
	Level        int     `db:"level"`
	Score        float64 `db:"score"`
	Proneness    float64 `db:"proneness"`
	LastEvidence int64   `db:"last_evidence"`
}

type eventRow struct {
	ID          string         `db:"id"`
	Description string         `db:"description"`
	OpenTick    int64          `db:"open_tick"`
	Deadline    int64          `db:"deadline"`
	Cancelled   int            `db:"cancelled"`
	VotesJSON   string         `db:"votes_json"`
	TallyJSON   sql.NullString `db:"tally_json"`
}

// LoadSnapshot reads the last saved town. It returns an error wrapping
// engine.ErrNoSnapshot if nothing has been saved yet.
func (db *DB) LoadSnapshot(ctx context.Context) (*engine.Snapshot, error) {
	meta, err := db.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	s := &engine.Snapshot{}
	if s.Tick, err = strconv.ParseUint(meta["last_tick"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse last_tick: %w", err)
	}
	if s.Seed, err = strconv.ParseInt(meta["seed"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	next, err := strconv.ParseUint(meta["next_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse next_id: %w", err)
	}
	s.NextID = npc.EntityID(next)
	if at, err := time.Parse(time.RFC3339Nano, meta["saved_at"]); err == nil {
		s.SavedAt = at
	}

	if s.Villagers, err = db.loadVillagers(ctx); err != nil {
		return nil, fmt.Errorf("load villagers: %w", err)
	}
	if s.Memories, err = db.loadMemories(ctx); err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	if s.Relationships, err = db.loadRelationships(ctx); err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}
	if s.Awareness, err = db.loadAwareness(ctx); err != nil {
		return nil, fmt.Errorf("load awareness: %w", err)
	}
	if s.Events, err = db.loadEvents(ctx); err != nil {
		return nil, fmt.Errorf("load town events: %w", err)
	}
	return s, nil
}

func (db *DB) loadMeta(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := db.conn.SelectContext(ctx, &rows, "SELECT key, value FROM world_meta"); err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	meta := make(map[string]string, len(rows))
	for _, r := range rows {
		meta[r.Key] = r.Value
	}
	if _, ok := meta["last_tick"]; !ok {
		return nil, fmt.Errorf("sqlite archive: %w", engine.ErrNoSnapshot)
	}
	return meta, nil
}

func (db *DB) loadVillagers(ctx context.Context) ([]engine.VillagerState, error) {
	var rows []villagerRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM villagers ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]engine.VillagerState, 0, len(rows))
	for _, r := range rows {
		v := engine.VillagerState{
			ID:            npc.EntityID(r.ID),
			Name:          r.Name,
			Position:      world.Vec2{X: r.PosX, Y: r.PosY},
			CooldownUntil: uint64(r.CooldownUntil),
			SpawnTick:     uint64(r.SpawnTick),
			SpawnedAware:  r.SpawnedAware != 0,
			Mood:          npc.Mood{Valence: r.MoodValence, Arousal: r.MoodArousal},
		}
		if r.DestX.Valid && r.DestY.Valid {
			v.Destination = &world.Vec2{X: r.DestX.Float64, Y: r.DestY.Float64}
		}
		if err := json.Unmarshal([]byte(r.NeedsJSON), &v.Needs); err != nil {
			return nil, fmt.Errorf("villager %d needs: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.PersonalityJSON), &v.Personality); err != nil {
			return nil, fmt.Errorf("villager %d personality: %w", r.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (db *DB) loadMemories(ctx context.Context) ([]engine.MemoryState, error) {
	var rows []memoryRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM memories ORDER BY owner, seq"); err != nil {
		return nil, err
	}
	var out []engine.MemoryState
	for _, r := range rows {
		owner := npc.EntityID(r.Owner)
		if len(out) == 0 || out[len(out)-1].Owner != owner {
			out = append(out, engine.MemoryState{Owner: owner})
		}
		last := &out[len(out)-1]
		last.Records = append(last.Records, memory.Record{
			Subject:        memory.Subject(r.Subject),
			Kind:           memory.Kind(r.Kind),
			Valence:        r.Valence,
			Importance:     r.Importance,
			BaseImportance: r.BaseImportance,
			CreatedTick:    uint64(r.CreatedTick),
			ReinforcedTick: uint64(r.ReinforcedTick),
			DecayRate:      r.DecayRate,
			Reinforcements: r.Reinforcements,
			Content:        r.Content,
			LongTerm:       r.LongTerm != 0,
		})
	}
	return out, nil
}

func (db *DB) loadRelationships(ctx context.Context) ([]social.Relationship, error) {
	var rows []relationshipRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM relationships ORDER BY from_id, to_id"); err != nil {
		return nil, err
	}
	out := make([]social.Relationship, 0, len(rows))
	for _, r := range rows {
		out = append(out, social.Relationship{
			From:         npc.EntityID(r.FromID),
			To:           npc.EntityID(r.ToID),
			Affinity:     r.Affinity,
			Trust:        r.Trust,
			Interactions: r.Interactions,
			LastTick:     uint64(r.LastTick),
		})
	}
	return out, nil
}

func (db *DB) loadAwareness(ctx context.Context) ([]awareness.State, error) {
	var rows []awarenessRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM awareness ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]awareness.State, 0, len(rows))
	for _, r := range rows {
		out = append(out, awareness.State{
			ID:           npc.EntityID(r.ID),
			Level:        npc.AwarenessLevel(r.Level),
			Score:        r.Score,
			Proneness:    r.Proneness,
			LastEvidence: uint64(r.LastEvidence),
		})
	}
	return out, nil
}

func (db *DB) loadEvents(ctx context.Context) ([]townevent.Event, error) {
	var rows []eventRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM town_events ORDER BY open_tick, id"); err != nil {
		return nil, err
	}
	out := make([]townevent.Event, 0, len(rows))
	for _, r := range rows {
		e := townevent.Event{
			ID:          r.ID,
			Description: r.Description,
			OpenTick:    uint64(r.OpenTick),
			Deadline:    uint64(r.Deadline),
			Cancelled:   r.Cancelled != 0,
		}
		if err := json.Unmarshal([]byte(r.VotesJSON), &e.Votes); err != nil {
			return nil, fmt.Errorf("event %s votes: %w", r.ID, err)
		}
		if r.TallyJSON.Valid {
			var t townevent.Tally
			if err := json.Unmarshal([]byte(r.TallyJSON.String), &t); err != nil {
				return nil, fmt.Errorf("event %s tally: %w", r.ID, err)
			}
			e.Tally = &t
		}
		out = append(out, e)
	}
	return out, nil
}
