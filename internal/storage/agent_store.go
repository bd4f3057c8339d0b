package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// --- Agent rows ---

func insertAgent(e execer, seq int, a *AgentProfile) error {
	specs, err := json.Marshal(a.Specializations)
	if err != nil {
		return fmt.Errorf("marshal specializations: %w", err)
	}
	_, err = e.Exec(
		`INSERT INTO agents (id, seq, name, description, specializations, reputation, total_sales, total_earnings, verified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, seq, a.Name, a.Description, string(specs), a.Reputation,
		a.TotalSales, a.TotalEarnings, boolToInt(a.Verified), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent %s: %w", a.ID, err)
	}
	return nil
}

func scanAgent(s *sql.Rows) (*AgentProfile, error) {
	a := &AgentProfile{}
	var specs string
	var verified int
	if err := s.Scan(&a.ID, &a.Name, &a.Description, &specs, &a.Reputation,
		&a.TotalSales, &a.TotalEarnings, &verified, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(specs), &a.Specializations); err != nil {
		return nil, fmt.Errorf("unmarshal specializations for %s: %w", a.ID, err)
	}
	a.Verified = verified == 1
	return a, nil
}

// ListAgents returns all agent profiles in registration order.
func (d *DB) ListAgents() ([]AgentProfile, error) {
	rows, err := d.db.Query(
		`SELECT id, name, description, specializations, reputation, total_sales, total_earnings, verified, created_at
		 FROM agents ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []AgentProfile
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// --- Listing rows ---

func insertListing(e execer, seq int, l *IntelligenceListing) error {
	_, err := e.Exec(
		`INSERT INTO listings (id, seq, seller_id, title, description, category, price, quality_score, sales_count, rating, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, seq, l.SellerID, l.Title, l.Description, l.Category, l.Price,
		l.QualityScore, l.SalesCount, l.Rating, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert listing %s: %w", l.ID, err)
	}
	return nil
}

// ListListings returns all listings in creation order.
func (d *DB) ListListings() ([]IntelligenceListing, error) {
	rows, err := d.db.Query(
		`SELECT id, seller_id, title, description, category, price, quality_score, sales_count, rating, created_at
		 FROM listings ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var listings []IntelligenceListing
	for rows.Next() {
		var l IntelligenceListing
		var desc sql.NullString
		if err := rows.Scan(&l.ID, &l.SellerID, &l.Title, &desc, &l.Category, &l.Price,
			&l.QualityScore, &l.SalesCount, &l.Rating, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.Description = desc.String
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
