package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/brandpulse/brandpulse/internal/models"
)

// ClassificationStats aggregates classifier output for a run report or the
// stats endpoint. Spam is counted via the boolean flag only; category counts
// exclude spam rows.
type ClassificationStats struct {
	Total        int64            `json:"total"`
	SpamCount    int64            `json:"spam_count"`
	Categories   map[string]int64 `json:"categories"`
	Products     map[string]int64 `json:"products"`
	AvgSentiment float64          `json:"avg_sentiment"`
	AvgUrgency   float64          `json:"avg_urgency"`
	AvgImpact    float64          `json:"avg_impact"`
	TotalTokens  int64            `json:"total_tokens"`
}

// DashboardStats summarizes workflow state for the team dashboard
type DashboardStats struct {
	TotalPosts         int64            `json:"total_posts"`
	Status             map[string]int64 `json:"status"`
	HighUrgencyPending int64            `json:"high_urgency_pending"`
	RaisedOnSlack      int64            `json:"raised_on_slack"`
	TicketsCreated     int64            `json:"tickets_created"`
	Categories         map[string]int64 `json:"categories"`
}

// StatsRepository provides aggregate queries over classified posts
type StatsRepository struct {
	*Repository
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(repo *Repository) *StatsRepository {
	return &StatsRepository{Repository: repo}
}

type categoryCount struct {
	Category string
	Count    int64
}

type productCount struct {
	Product string
	Count   int64
}

type statusCount struct {
	Status string
	Count  int64
}

// Classification computes classification aggregates. Empty platform/company
// match everything.
func (r *StatsRepository) Classification(ctx context.Context, platform, company string) (*ClassificationStats, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.ClassifiedPost{})
		if platform != "" {
			q = q.Where("platform = ?", platform)
		}
		if company != "" {
			q = q.Where("company = ?", company)
		}
		return q
	}

	stats := &ClassificationStats{
		Categories: make(map[string]int64),
		Products:   make(map[string]int64),
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if stats.Total == 0 {
		return stats, nil
	}

	if err := base().Where("is_spam = ?", true).Count(&stats.SpamCount).Error; err != nil {
		return nil, err
	}

	var cats []categoryCount
	if err := base().
		Where("is_spam = ? AND category <> ''", false).
		Select("category, count(*) as count").
		Group("category").
		Scan(&cats).Error; err != nil {
		return nil, err
	}
	for _, c := range cats {
		stats.Categories[c.Category] = c.Count
	}

	var prods []productCount
	if err := base().
		Where("is_spam = ? AND product IS NOT NULL", false).
		Select("product, count(*) as count").
		Group("product").
		Scan(&prods).Error; err != nil {
		return nil, err
	}
	for _, p := range prods {
		stats.Products[p.Product] = p.Count
	}

	type averages struct {
		AvgSentiment float64
		AvgUrgency   float64
		AvgImpact    float64
		TotalTokens  int64
	}
	var avg averages
	if err := base().
		Select("coalesce(avg(sentiment_score),0) as avg_sentiment, " +
			"coalesce(avg(urgency_score),0) as avg_urgency, " +
			"coalesce(avg(impact_score),0) as avg_impact, " +
			"coalesce(sum(total_tokens),0) as total_tokens").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	stats.AvgSentiment = avg.AvgSentiment
	stats.AvgUrgency = avg.AvgUrgency
	stats.AvgImpact = avg.AvgImpact
	stats.TotalTokens = avg.TotalTokens

	return stats, nil
}

// Dashboard computes workflow aggregates for the team dashboard. Spam rows
// are excluded throughout.
func (r *StatsRepository) Dashboard(ctx context.Context, company string) (*DashboardStats, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.ClassifiedPost{}).Where("is_spam = ?", false)
		if company != "" {
			q = q.Where("company = ?", company)
		}
		return q
	}

	stats := &DashboardStats{
		Status:     make(map[string]int64),
		Categories: make(map[string]int64),
	}

	if err := base().Count(&stats.TotalPosts).Error; err != nil {
		return nil, err
	}

	var statuses []statusCount
	if err := base().
		Select("status, count(*) as count").
		Group("status").
		Scan(&statuses).Error; err != nil {
		return nil, err
	}
	for _, s := range statuses {
		stats.Status[s.Status] = s.Count
	}

	if err := base().
		Where("urgency_score >= ? AND status = ?", 7, models.StatusNew).
		Count(&stats.HighUrgencyPending).Error; err != nil {
		return nil, err
	}

	if err := base().
		Where("raised_on_slack = ?", true).
		Count(&stats.RaisedOnSlack).Error; err != nil {
		return nil, err
	}

	if err := base().
		Where("ticket_created = ?", true).
		Count(&stats.TicketsCreated).Error; err != nil {
		return nil, err
	}

	var cats []categoryCount
	if err := base().
		Where("category <> ''").
		Select("category, count(*) as count").
		Group("category").
		Scan(&cats).Error; err != nil {
		return nil, err
	}
	for _, c := range cats {
		stats.Categories[c.Category] = c.Count
	}

	return stats, nil
}
