package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// Archiver exports a settled round's durable state (market snapshots,
// per-holder balances, condition records) as JSONL files under
// archive/rounds/<round>/. The primary store keeps its rows; the export is
// a verification and reconciliation artifact, not a purge.
type Archiver struct {
	writer     domain.BlobWriter
	markets    domain.MarketStore
	balances   domain.BalanceStore
	conditions domain.ConditionStore
	audit      domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	markets domain.MarketStore,
	balances domain.BalanceStore,
	conditions domain.ConditionStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer:     writer,
		markets:    markets,
		balances:   balances,
		conditions: conditions,
		audit:      audit,
	}
}

// ArchiveRound exports the round's markets and outcome balances. It
// returns the number of records written.
func (a *Archiver) ArchiveRound(ctx context.Context, round int64) (int64, error) {
	markets, err := a.markets.ListByRound(ctx, round)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive round %d markets query: %w", round, err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(markets)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive round %d markets marshal: %w", round, err)
	}
	path := fmt.Sprintf("archive/rounds/%d/markets.jsonl", round)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive round %d markets upload: %w", round, err)
	}
	count := int64(len(markets))

	var allBalances []domain.OutcomeBalance
	for _, m := range markets {
		bals, err := a.balances.ListByCondition(ctx, m.ConditionID)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive round %d balances query %s: %w", round, m.ConditionID, err)
		}
		allBalances = append(allBalances, bals...)
	}
	if len(allBalances) > 0 {
		buf, err = marshalJSONL(allBalances)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive round %d balances marshal: %w", round, err)
		}
		path = fmt.Sprintf("archive/rounds/%d/balances.jsonl", round)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return count, fmt.Errorf("s3blob: archive round %d balances upload: %w", round, err)
		}
		count += int64(len(allBalances))
	}

	creations, err := a.conditions.ListByRound(ctx, round)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive round %d conditions query: %w", round, err)
	}
	if len(creations) > 0 {
		buf, err = marshalJSONL(creations)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive round %d conditions marshal: %w", round, err)
		}
		path = fmt.Sprintf("archive/rounds/%d/conditions.jsonl", round)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return count, fmt.Errorf("s3blob: archive round %d conditions upload: %w", round, err)
		}
		count += int64(len(creations))
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.round", map[string]any{
			"round": round,
			"count": count,
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive round %d audit log: %w", round, err)
		}
	}
	return count, nil
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
