package storage

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
)

// --- Transaction rows ---

func insertTransaction(e execer, seq int, t *Transaction) error {
	var rating sql.NullInt64
	if t.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*t.Rating), Valid: true}
	}
	_, err := e.Exec(
		`INSERT INTO transactions (id, seq, buyer_id, seller_id, intelligence_id, price, timestamp, rating, review, shielded_tx_id, commitment_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, seq, t.BuyerID, t.SellerID, t.IntelligenceID, t.Price, t.Timestamp,
		rating, t.Review, t.ShieldedTxID, t.CommitmentID,
	)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.ID, err)
	}
	return nil
}

// ListTransactions returns the transaction ledger in append order.
func (d *DB) ListTransactions() ([]Transaction, error) {
	rows, err := d.db.Query(
		`SELECT id, buyer_id, seller_id, intelligence_id, price, timestamp, rating, review, shielded_tx_id, commitment_id
		 FROM transactions ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		var rating sql.NullInt64
		var review, shielded, commitment sql.NullString
		if err := rows.Scan(&t.ID, &t.BuyerID, &t.SellerID, &t.IntelligenceID, &t.Price,
			&t.Timestamp, &rating, &review, &shielded, &commitment); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if rating.Valid {
			r := int(rating.Int64)
			t.Rating = &r
		}
		t.Review = review.String
		t.ShieldedTxID = shielded.String
		t.CommitmentID = commitment.String
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// --- Commitment rows ---

func insertCommitment(e execer, seq int, c *Commitment) error {
	var reasoning, ctxJSON sql.NullString
	if len(c.Sealed) > 0 {
		reasoning = sql.NullString{String: string(c.Sealed), Valid: true}
	} else if c.Reasoning != nil {
		b, err := json.Marshal(c.Reasoning)
		if err != nil {
			return fmt.Errorf("marshal reasoning: %w", err)
		}
		reasoning = sql.NullString{String: string(b), Valid: true}
	}
	if len(c.Context) > 0 {
		b, err := json.Marshal(c.Context)
		if err != nil {
			return fmt.Errorf("marshal commitment context: %w", err)
		}
		ctxJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := e.Exec(
		`INSERT INTO commitments (id, seq, agent_id, transaction_id, hash, algorithm, reasoning, nonce, context, status, created_at, reveal_deadline, revealed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, seq, c.AgentID, c.TransactionID, c.Hash, c.Algorithm, reasoning,
		c.Nonce, ctxJSON, c.Status, c.CreatedAt, c.RevealDeadline, c.RevealedAt,
	)
	if err != nil {
		return fmt.Errorf("insert commitment %s: %w", c.ID, err)
	}
	return nil
}

// ListCommitments returns all commitment records in creation order. The
// stored reasoning bytes come back verbatim in Sealed; the decoded copy keeps
// numbers as json.Number so no precision is lost.
func (d *DB) ListCommitments() ([]Commitment, error) {
	rows, err := d.db.Query(
		`SELECT id, agent_id, transaction_id, hash, algorithm, reasoning, nonce, context, status, created_at, reveal_deadline, revealed_at
		 FROM commitments ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	defer rows.Close()

	var out []Commitment
	for rows.Next() {
		var c Commitment
		var txID, reasoning, nonce, ctxJSON sql.NullString
		var revealedAt sql.NullInt64
		if err := rows.Scan(&c.ID, &c.AgentID, &txID, &c.Hash, &c.Algorithm, &reasoning,
			&nonce, &ctxJSON, &c.Status, &c.CreatedAt, &c.RevealDeadline, &revealedAt); err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		c.TransactionID = txID.String
		c.Nonce = nonce.String
		c.RevealedAt = revealedAt.Int64
		if reasoning.Valid {
			c.Sealed = []byte(reasoning.String)
			c.Reasoning = &Reasoning{}
			dec := json.NewDecoder(bytes.NewReader(c.Sealed))
			dec.UseNumber()
			if err := dec.Decode(c.Reasoning); err != nil {
				return nil, fmt.Errorf("unmarshal reasoning for %s: %w", c.ID, err)
			}
		}
		if ctxJSON.Valid {
			if err := json.Unmarshal([]byte(ctxJSON.String), &c.Context); err != nil {
				return nil, fmt.Errorf("unmarshal context for %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
