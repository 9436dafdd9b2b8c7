package llm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of the DynamoDB client the spend store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// CostControlService is the authoritative per-user daily spend limit. Items are
// keyed by user and UTC day and expire after spendRetention.
type CostControlService struct {
	client     DynamoDBAPI
	tableName  string
	dailyLimit float64
	now        func() time.Time
}

const spendRetention = 7 * 24 * time.Hour

type UserSpendRecord struct {
	UserID      string  `dynamodbav:"user_id"`
	Date        string  `dynamodbav:"date"`
	LLMRequests int     `dynamodbav:"llm_requests"`
	LLMCost     float64 `dynamodbav:"llm_cost"`
	DailyLimit  float64 `dynamodbav:"daily_limit"`
	CreatedAt   string  `dynamodbav:"created_at"`
	UpdatedAt   string  `dynamodbav:"updated_at"`
	TTL         int64   `dynamodbav:"ttl"`
}

type CostControlResult struct {
	Allowed     bool    `json:"allowed"`
	Remaining   float64 `json:"remaining"`
	CurrentCost float64 `json:"current_cost"`
	DailyLimit  float64 `json:"daily_limit"`
	Reason      string  `json:"reason,omitempty"`
}

func NewCostControlService(ctx context.Context, tableName string, dailyLimit float64) (*CostControlService, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewCostControlServiceWithClient(dynamodb.NewFromConfig(cfg), tableName, dailyLimit), nil
}

func NewCostControlServiceWithClient(client DynamoDBAPI, tableName string, dailyLimit float64) *CostControlService {
	if dailyLimit <= 0 {
		dailyLimit = 5.0 // $5.00 per day
	}
	return &CostControlService{
		client:     client,
		tableName:  tableName,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// CheckUserSpendLimit reports whether estimatedCost still fits in today's limit.
func (s *CostControlService) CheckUserSpendLimit(ctx context.Context, userID string, estimatedCost float64) (*CostControlResult, error) {
	record, err := s.currentRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &CostControlResult{
		CurrentCost: record.LLMCost,
		DailyLimit:  record.DailyLimit,
		Remaining:   record.DailyLimit - record.LLMCost,
	}

	if record.LLMCost+estimatedCost > record.DailyLimit {
		result.Allowed = false
		result.Reason = fmt.Sprintf("Daily limit exceeded. Current: $%.4f, Request: $%.4f, Limit: $%.4f",
			record.LLMCost, estimatedCost, record.DailyLimit)
		return result, nil
	}

	result.Allowed = true
	return result, nil
}

// RecordLLMRequest adds cost to today's record. The increment is a single
// UpdateItem so concurrent containers cannot lose each other's writes.
func (s *CostControlService) RecordLLMRequest(ctx context.Context, userID string, cost float64) error {
	now := s.now()
	stamp := now.Format(time.RFC3339)

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       recordKey(userID, s.today()),
		UpdateExpression: aws.String("ADD llm_requests :one, llm_cost :cost " +
			"SET daily_limit = if_not_exists(daily_limit, :limit), created_at = if_not_exists(created_at, :now), " +
			"updated_at = :now, #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":cost":  &types.AttributeValueMemberN{Value: strconv.FormatFloat(cost, 'f', -1, 64)},
			":limit": &types.AttributeValueMemberN{Value: strconv.FormatFloat(s.dailyLimit, 'f', -1, 64)},
			":now":   &types.AttributeValueMemberS{Value: stamp},
			":ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(spendRetention).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save user spend record: %w", err)
	}
	return nil
}

func (s *CostControlService) today() string {
	return s.now().UTC().Format("2006-01-02")
}

// currentRecord returns today's record, or a fresh one with the default limit.
func (s *CostControlService) currentRecord(ctx context.Context, userID string) (*UserSpendRecord, error) {
	today := s.today()
	record, err := s.getUserSpendRecord(ctx, userID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to get user spend record: %w", err)
	}
	if record == nil {
		now := s.now().Format(time.RFC3339)
		record = &UserSpendRecord{
			UserID:     userID,
			Date:       today,
			DailyLimit: s.dailyLimit,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return record, nil
}

func (s *CostControlService) getUserSpendRecord(ctx context.Context, userID, date string) (*UserSpendRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       recordKey(userID, date),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var record UserSpendRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &record, nil
}

func recordKey(userID, date string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: userID},
		"date":    &types.AttributeValueMemberS{Value: date},
	}
}
