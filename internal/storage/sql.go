package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/chat-metrics/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// dialect holds what differs between the SQL backends.
type dialect struct {
	name        string
	migration   string
	numbered    bool
	isDuplicate func(error) bool
}

// SQLStorage implements Storage over database/sql. Queries are written with
// '?' placeholders and rebound for drivers that use numbered parameters.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func newSQLStorage(db *sql.DB, d dialect, logger *zap.Logger) *SQLStorage {
	return &SQLStorage{db: db, dialect: d, logger: logger}
}

func (s *SQLStorage) q(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations/" + s.dialect.migration)
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	for _, stmt := range strings.Split(string(migrationSQL), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing migrations: %w", err)
		}
	}
	return nil
}

func (s *SQLStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (s *SQLStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO conversations (id, ticket_id, phone_number, started_at, ended_at, duration, message_count, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			conv.ID, conv.TicketID, conv.PhoneNumber, conv.StartedAt.UTC(), conv.EndedAt.UTC(),
			conv.Duration, conv.MessageCount, conv.Status, conv.CreatedAt.UTC(),
		)
		if err != nil {
			if s.dialect.isDuplicate(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("error creating conversation: %w", err)
		}

		for i, m := range conv.Messages {
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			m.ConversationID = conv.ID
			_, err := tx.ExecContext(ctx, s.q(`
				INSERT INTO messages (id, conversation_id, seq, external_id, provider_message_id, sender, content, media_type, timestamp, from_me, send_type, operator_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				m.ID, conv.ID, i, m.ExternalID, nullString(m.ProviderMessageID), string(m.Sender), m.Content,
				m.MediaType, m.Timestamp.UTC(), m.FromMe, nullString(m.SendType), nullInt(m.OperatorID),
			)
			if err != nil {
				return fmt.Errorf("error creating message %s: %w", m.ExternalID, err)
			}
		}
		return nil
	})
}

const conversationColumns = `id, ticket_id, phone_number, started_at, ended_at, duration, message_count, status, created_at`

func scanConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := row.Scan(&conv.ID, &conv.TicketID, &conv.PhoneNumber, &conv.StartedAt, &conv.EndedAt,
		&conv.Duration, &conv.MessageCount, &conv.Status, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *SQLStorage) getConversation(ctx context.Context, where string, arg any) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+conversationColumns+` FROM conversations WHERE `+where+` = ?`), arg)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}
	if conv.Messages, err = s.loadMessages(ctx, conv.ID); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *SQLStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return s.getConversation(ctx, "id", id)
}

func (s *SQLStorage) GetConversationByTicket(ctx context.Context, ticketID string) (*models.Conversation, error) {
	return s.getConversation(ctx, "ticket_id", ticketID)
}

func (s *SQLStorage) loadMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, conversation_id, external_id, provider_message_id, sender, content, media_type, timestamp, from_me, send_type, operator_id
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var provider, sendType sql.NullString
		var operator sql.NullInt64
		var sender string
		err := rows.Scan(&m.ID, &m.ConversationID, &m.ExternalID, &provider, &sender, &m.Content,
			&m.MediaType, &m.Timestamp, &m.FromMe, &sendType, &operator)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		m.Sender = models.Sender(sender)
		m.ProviderMessageID = provider.String
		m.SendType = sendType.String
		if operator.Valid {
			id := operator.Int64
			m.OperatorID = &id
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLStorage) ListUnanalyzed(ctx context.Context, limit, offset int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT c.id, c.ticket_id, c.phone_number, c.started_at, c.ended_at, c.duration, c.message_count, c.status, c.created_at
		FROM conversations c
		LEFT JOIN analyses a ON a.conversation_id = c.id
		WHERE a.id IS NULL
		ORDER BY c.started_at, c.ticket_id
		LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error querying unanalyzed conversations: %w", err)
	}

	var convs []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, conv := range convs {
		if conv.Messages, err = s.loadMessages(ctx, conv.ID); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (s *SQLStorage) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting: %w", err)
	}
	return n, nil
}

func (s *SQLStorage) CountConversations(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM conversations`)
}

func (s *SQLStorage) CountUnanalyzed(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM conversations c LEFT JOIN analyses a ON a.conversation_id = c.id WHERE a.id IS NULL`)
}

func (s *SQLStorage) CountMessages(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM messages`)
}

func (s *SQLStorage) DeleteConversations(ctx context.Context, ticketIDs []string) (int, error) {
	deleted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, ticket := range ticketIDs {
			var id string
			err := tx.QueryRowContext(ctx, s.q(`SELECT id FROM conversations WHERE ticket_id = ?`), ticket).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("error looking up ticket %s: %w", ticket, err)
			}
			for _, stmt := range []string{
				`DELETE FROM messages WHERE conversation_id = ?`,
				`DELETE FROM analyses WHERE conversation_id = ?`,
				`DELETE FROM conversations WHERE id = ?`,
			} {
				if _, err := tx.ExecContext(ctx, s.q(stmt), id); err != nil {
					return fmt.Errorf("error deleting ticket %s: %w", ticket, err)
				}
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (s *SQLStorage) CreateAnalysis(ctx context.Context, a *models.Analysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO analyses (id, conversation_id, primary_service, secondary_services, sentiment, user_profile,
			frustration_level, key_phrases, user_intent, was_resolved, resolution_stage, abandonment_reason,
			opportunities, recommendations, funnel_stage, dropoff_point, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.ConversationID, string(a.PrimaryService), encodeList(a.SecondaryServices), string(a.Sentiment),
		string(a.UserProfile), a.FrustrationLevel, encodeList(a.KeyPhrases), string(a.UserIntent), a.WasResolved,
		a.ResolutionStage, a.AbandonmentReason, encodeList(a.Opportunities), encodeList(a.Recommendations),
		string(a.FunnelStage), a.DropoffPoint, a.Model, a.CreatedAt.UTC(),
	)
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("error creating analysis: %w", err)
	}
	return nil
}

const analysisSelect = `
	SELECT a.id, a.conversation_id, c.ticket_id, a.primary_service, a.secondary_services, a.sentiment, a.user_profile,
		a.frustration_level, a.key_phrases, a.user_intent, a.was_resolved, a.resolution_stage, a.abandonment_reason,
		a.opportunities, a.recommendations, a.funnel_stage, a.dropoff_point, a.model, a.created_at
	FROM analyses a
	JOIN conversations c ON c.id = a.conversation_id`

func scanAnalysis(row interface{ Scan(...any) error }) (*models.Analysis, error) {
	a := &models.Analysis{}
	var service, sentiment, profile, intent, funnel string
	var secondary, phrases, opportunities, recommendations string
	var resolution, abandonment, dropoff sql.NullString
	err := row.Scan(&a.ID, &a.ConversationID, &a.TicketID, &service, &secondary, &sentiment, &profile,
		&a.FrustrationLevel, &phrases, &intent, &a.WasResolved, &resolution, &abandonment,
		&opportunities, &recommendations, &funnel, &dropoff, &a.Model, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.PrimaryService = models.Service(service)
	a.Sentiment = models.Sentiment(sentiment)
	a.UserProfile = models.UserProfile(profile)
	a.UserIntent = models.UserIntent(intent)
	a.FunnelStage = models.FunnelStage(funnel)
	a.SecondaryServices = decodeList(secondary)
	a.KeyPhrases = decodeList(phrases)
	a.Opportunities = decodeList(opportunities)
	a.Recommendations = decodeList(recommendations)
	a.ResolutionStage = stringPtr(resolution)
	a.AbandonmentReason = stringPtr(abandonment)
	a.DropoffPoint = stringPtr(dropoff)
	return a, nil
}

func (s *SQLStorage) GetAnalysis(ctx context.Context, conversationID string) (*models.Analysis, error) {
	row := s.db.QueryRowContext(ctx, s.q(analysisSelect+` WHERE a.conversation_id = ?`), conversationID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying analysis: %w", err)
	}
	return a, nil
}

func (s *SQLStorage) DeleteAnalysis(ctx context.Context, conversationID string) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM analyses WHERE conversation_id = ?`), conversationID)
	if err != nil {
		return fmt.Errorf("error deleting analysis: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStorage) ListAnalyses(ctx context.Context) ([]*models.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, analysisSelect+` ORDER BY a.created_at, c.ticket_id`)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %w", err)
	}
	defer rows.Close()

	analyses := make([]*models.Analysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

func (s *SQLStorage) CountAnalyses(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM analyses`)
}

func (s *SQLStorage) UpsertServiceMetric(ctx context.Context, m *models.ServiceMetric) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.Date = models.Day(m.Date)

	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO service_metrics (id, service, day, total_conversations, resolved_count, abandoned_count,
			previous_period_total, growth_rate, average_satisfaction, average_frustration,
			positive_count, neutral_count, negative_count, frustrated_count, user_profiles, funnel,
			top_questions, top_problems, top_opportunities, economic_impact, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (service, day) DO UPDATE SET
			total_conversations = excluded.total_conversations,
			resolved_count = excluded.resolved_count,
			abandoned_count = excluded.abandoned_count,
			previous_period_total = excluded.previous_period_total,
			growth_rate = excluded.growth_rate,
			average_satisfaction = excluded.average_satisfaction,
			average_frustration = excluded.average_frustration,
			positive_count = excluded.positive_count,
			neutral_count = excluded.neutral_count,
			negative_count = excluded.negative_count,
			frustrated_count = excluded.frustrated_count,
			user_profiles = excluded.user_profiles,
			funnel = excluded.funnel,
			top_questions = excluded.top_questions,
			top_problems = excluded.top_problems,
			top_opportunities = excluded.top_opportunities,
			economic_impact = excluded.economic_impact,
			updated_at = excluded.updated_at
		RETURNING id`),
		m.ID, string(m.Service), dayKey(m.Date), m.TotalConversations, m.ResolvedCount, m.AbandonedCount,
		m.PreviousPeriodTotal, m.GrowthRate, m.AverageSatisfaction, m.AverageFrustration,
		m.PositiveCount, m.NeutralCount, m.NegativeCount, m.FrustratedCount,
		encodeJSON(m.UserProfiles), encodeJSON(m.Funnel),
		encodeList(m.TopQuestions), encodeList(m.TopProblems), encodeList(m.TopOpportunities),
		m.EconomicImpact.StringFixed(2), m.UpdatedAt.UTC(),
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("error upserting service metric: %w", err)
	}
	return nil
}

const metricSelect = `
	SELECT id, service, day, total_conversations, resolved_count, abandoned_count, previous_period_total,
		growth_rate, average_satisfaction, average_frustration, positive_count, neutral_count, negative_count,
		frustrated_count, user_profiles, funnel, top_questions, top_problems, top_opportunities,
		economic_impact, updated_at
	FROM service_metrics`

func scanMetric(row interface{ Scan(...any) error }) (*models.ServiceMetric, error) {
	m := &models.ServiceMetric{}
	var service, day, profiles, funnel, questions, problems, opportunities string
	err := row.Scan(&m.ID, &service, &day, &m.TotalConversations, &m.ResolvedCount, &m.AbandonedCount,
		&m.PreviousPeriodTotal, &m.GrowthRate, &m.AverageSatisfaction, &m.AverageFrustration,
		&m.PositiveCount, &m.NeutralCount, &m.NegativeCount, &m.FrustratedCount,
		&profiles, &funnel, &questions, &problems, &opportunities, &m.EconomicImpact, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Service = models.Service(service)
	if m.Date, err = time.Parse("2006-01-02", day); err != nil {
		return nil, fmt.Errorf("error parsing metric day %q: %w", day, err)
	}
	m.UserProfiles = decodeCounts(profiles)
	m.Funnel = decodeCounts(funnel)
	m.TopQuestions = decodeList(questions)
	m.TopProblems = decodeList(problems)
	m.TopOpportunities = decodeList(opportunities)
	return m, nil
}

func (s *SQLStorage) GetServiceMetric(ctx context.Context, service models.Service, day time.Time) (*models.ServiceMetric, error) {
	row := s.db.QueryRowContext(ctx, s.q(metricSelect+` WHERE service = ? AND day = ?`), string(service), dayKey(day))
	m, err := scanMetric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying service metric: %w", err)
	}
	return m, nil
}

func (s *SQLStorage) ListServiceMetrics(ctx context.Context, day time.Time) ([]*models.ServiceMetric, error) {
	rows, err := s.db.QueryContext(ctx, s.q(metricSelect+` WHERE day = ? ORDER BY total_conversations DESC, service`), dayKey(day))
	if err != nil {
		return nil, fmt.Errorf("error querying service metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]*models.ServiceMetric, 0)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning service metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (s *SQLStorage) ReplaceAlerts(ctx context.Context, alerts []*models.Alert, at time.Time) (int, error) {
	var resolved int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, s.q(`UPDATE alerts SET status = ?, resolved_at = ? WHERE status = ?`),
			string(models.AlertResolved), at.UTC(), string(models.AlertActive))
		if err != nil {
			return fmt.Errorf("error resolving active alerts: %w", err)
		}
		if resolved, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("error getting rows affected: %w", err)
		}

		for _, a := range alerts {
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			var service *string
			if a.Service != nil {
				v := string(*a.Service)
				service = &v
			}
			_, err := tx.ExecContext(ctx, s.q(`
				INSERT INTO alerts (id, severity, type, conversation_id, service, title, description, recommendation,
					affected_count, impact_score, status, detected_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				a.ID, string(a.Severity), string(a.Type), a.ConversationID, service, a.Title, a.Description,
				a.Recommendation, a.AffectedCount, a.ImpactScore, string(a.Status), a.DetectedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("error creating alert: %w", err)
			}
		}
		return nil
	})
	return int(resolved), err
}

func (s *SQLStorage) ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	query := `
		SELECT id, severity, type, conversation_id, service, title, description, recommendation,
			affected_count, impact_score, status, detected_at, acknowledged_at, resolved_at
		FROM alerts
		WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	query += ` ORDER BY detected_at DESC, impact_score DESC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*models.Alert, 0)
	for rows.Next() {
		a := &models.Alert{}
		var severity, typ, status string
		var conversation, service sql.NullString
		var acked, resolved sql.NullTime
		err := rows.Scan(&a.ID, &severity, &typ, &conversation, &service, &a.Title, &a.Description,
			&a.Recommendation, &a.AffectedCount, &a.ImpactScore, &status, &a.DetectedAt, &acked, &resolved)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		a.Severity = models.Severity(severity)
		a.Type = models.AlertType(typ)
		a.Status = models.AlertStatus(status)
		a.ConversationID = stringPtr(conversation)
		if service.Valid {
			svc := models.Service(service.String)
			a.Service = &svc
		}
		a.AcknowledgedAt = timePtr(acked)
		a.ResolvedAt = timePtr(resolved)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *SQLStorage) UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus, at time.Time) error {
	var result sql.Result
	var err error
	switch status {
	case models.AlertAcknowledged:
		result, err = s.db.ExecContext(ctx, s.q(`UPDATE alerts SET status = ?, acknowledged_at = ? WHERE id = ?`), string(status), at.UTC(), id)
	case models.AlertResolved:
		result, err = s.db.ExecContext(ctx, s.q(`UPDATE alerts SET status = ?, resolved_at = ? WHERE id = ?`), string(status), at.UTC(), id)
	default:
		result, err = s.db.ExecContext(ctx, s.q(`UPDATE alerts SET status = ?, resolved_at = NULL WHERE id = ?`), string(status), id)
	}
	if err != nil {
		return fmt.Errorf("error updating alert status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStorage) CreateImportLog(ctx context.Context, l *models.ImportLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO import_logs (id, operation, status, file_name, file_size, total_items, processed_items,
			error_count, errors, processing_ms, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, string(l.Operation), string(l.Status), l.FileName, l.FileSize, l.TotalItems, l.ProcessedItems,
		l.ErrorCount, encodeList(l.Errors), l.ProcessingTime.Milliseconds(), l.StartedAt.UTC(), nullTime(l.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("error creating import log: %w", err)
	}
	return nil
}

func (s *SQLStorage) UpdateImportLog(ctx context.Context, l *models.ImportLog) error {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE import_logs
		SET status = ?, total_items = ?, processed_items = ?, error_count = ?, errors = ?, processing_ms = ?, completed_at = ?
		WHERE id = ?`),
		string(l.Status), l.TotalItems, l.ProcessedItems, l.ErrorCount, encodeList(l.Errors),
		l.ProcessingTime.Milliseconds(), nullTime(l.CompletedAt), l.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating import log: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStorage) ListImportLogs(ctx context.Context, limit int) ([]*models.ImportLog, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, operation, status, file_name, file_size, total_items, processed_items, error_count, errors,
			processing_ms, started_at, completed_at
		FROM import_logs
		ORDER BY started_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("error querying import logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.ImportLog, 0)
	for rows.Next() {
		l := &models.ImportLog{}
		var operation, status, errs string
		var processingMS int64
		var completed sql.NullTime
		err := rows.Scan(&l.ID, &operation, &status, &l.FileName, &l.FileSize, &l.TotalItems, &l.ProcessedItems,
			&l.ErrorCount, &errs, &processingMS, &l.StartedAt, &completed)
		if err != nil {
			return nil, fmt.Errorf("error scanning import log: %w", err)
		}
		l.Operation = models.Operation(operation)
		l.Status = models.ImportStatus(status)
		l.Errors = decodeList(errs)
		l.ProcessingTime = time.Duration(processingMS) * time.Millisecond
		l.CompletedAt = timePtr(completed)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLStorage) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"messages", "analyses", "conversations", "service_metrics", "alerts", "import_logs"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("error clearing %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	return encodeJSON(items)
}

func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func decodeList(raw string) []string {
	items := []string{}
	if raw == "" {
		return items
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil || items == nil {
		return []string{}
	}
	return items
}

func decodeCounts(raw string) map[string]int {
	counts := map[string]int{}
	if raw == "" {
		return counts
	}
	if err := json.Unmarshal([]byte(raw), &counts); err != nil || counts == nil {
		return map[string]int{}
	}
	return counts
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
