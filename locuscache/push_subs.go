// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locuscache

import (
	"context"
	"fmt"
	"sort"
)

// Push-subscription bookkeeping: the client remembers which tenant ids it
// has already registered for push notifications so setup is skipped on the
// next launch. Any mismatch with the user's current business list
// invalidates the marker wholesale; there is no per-tenant diffing.

// SubscribedTenants returns the recorded tenant ids, sorted.
func (d *DB) SubscribedTenants(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT tenant_id FROM _locus_push_subs ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query push subscriptions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan push subscription: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push subscriptions: %w", err)
	}
	return ids, nil
}

// ReplaceSubscribedTenants rewrites the marker with the given set.
func (d *DB) ReplaceSubscribedTenants(ctx context.Context, tenantIDs []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin subscription transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM _locus_push_subs`); err != nil {
		return fmt.Errorf("failed to clear push subscriptions: %w", err)
	}
	for _, id := range tenantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO _locus_push_subs (tenant_id) VALUES (?)
		`, id); err != nil {
			return fmt.Errorf("failed to record push subscription for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// SubscriptionsMatch reports whether the recorded set equals tenantIDs
// exactly. A false result means the caller must redo push setup and rewrite
// the marker.
func (d *DB) SubscriptionsMatch(ctx context.Context, tenantIDs []string) (bool, error) {
	recorded, err := d.SubscribedTenants(ctx)
	if err != nil {
		return false, err
	}

	want := make([]string, 0, len(tenantIDs))
	seen := make(map[string]bool, len(tenantIDs))
	for _, id := range tenantIDs {
		if !seen[id] {
			seen[id] = true
			want = append(want, id)
		}
	}
	sort.Strings(want)

	if len(recorded) != len(want) {
		return false, nil
	}
	for i := range recorded {
		if recorded[i] != want[i] {
			return false, nil
		}
	}
	return true, nil
}
