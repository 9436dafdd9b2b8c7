package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	DefaultExpiry = 24 * time.Hour
)

// Error is returned for requests the idempotency layer refuses to run.
type Error struct {
	code    string
	status  int
	message string
}

func (e *Error) Error() string       { return e.message }
func (e *Error) Code() string        { return e.code }
func (e *Error) StatusCode() int     { return e.status }
func (e *Error) UserMessage() string { return e.message }

var (
	ErrInProgress = &Error{
		code:    "REQUEST_IN_PROGRESS",
		status:  http.StatusConflict,
		message: "request is already being processed",
	}
	ErrKeyConflict = &Error{
		code:    "IDEMPOTENCY_KEY_CONFLICT",
		status:  http.StatusUnprocessableEntity,
		message: "idempotency key reused for a different request",
	}
)

// DynamoDBAPI is the subset of the DynamoDB client used here.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type Record struct {
	Key         string    `dynamodbav:"key"`
	UserID      string    `dynamodbav:"user_id"`
	Operation   string    `dynamodbav:"operation"`
	RequestHash string    `dynamodbav:"request_hash"`
	Response    string    `dynamodbav:"response"`
	Status      string    `dynamodbav:"status"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	ExpiresAt   time.Time `dynamodbav:"expires_at"`
	TTL         int64     `dynamodbav:"ttl"`
}

// Service makes POST handlers safe to retry. A completed request replays its
// stored response; a pending one is rejected; a failed one may run again.
type Service struct {
	client    DynamoDBAPI
	tableName string
	expiry    time.Duration
	now       func() time.Time
	log       *logrus.Entry
}

func NewService(ctx context.Context, tableName string, log *logrus.Entry) (*Service, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewServiceWithClient(dynamodb.NewFromConfig(cfg), tableName, log), nil
}

func NewServiceWithClient(client DynamoDBAPI, tableName string, log *logrus.Entry) *Service {
	return &Service{
		client:    client,
		tableName: tableName,
		expiry:    DefaultExpiry,
		now:       time.Now,
		log:       log,
	}
}

func hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Key derives the record key from the Idempotency-Key header value.
func Key(userID, operation, clientKey string) string {
	return hash(userID, operation, clientKey)
}

func (s *Service) lookup(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	if s.now().After(rec.ExpiresAt) {
		// DynamoDB TTL deletion lags; treat as absent.
		if err := s.delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &rec, nil
}

func (s *Service) claim(ctx context.Context, rec *Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#key)"),
		ExpressionAttributeNames: map[string]string{"#key": "key"},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrInProgress
		}
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, key, response, status string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: key}},
		UpdateExpression: aws.String("SET #response = :response, #status = :status, #updated_at = :updated_at"),
		ExpressionAttributeNames: map[string]string{
			"#response":   "response",
			"#status":     "status",
			"#updated_at": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":response":   &types.AttributeValueMemberS{Value: response},
			":status":     &types.AttributeValueMemberS{Value: status},
			":updated_at": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update idempotency record: %w", err)
	}
	return nil
}

func (s *Service) delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: key}},
	})
	if err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}

// Do runs fn at most once per client key. replayed is true when the response
// came from an earlier completed run. Without a client key fn always runs and
// nothing is recorded.
func (s *Service) Do(ctx context.Context, userID, operation, clientKey, body string, fn func() (any, error)) (resp json.RawMessage, replayed bool, err error) {
	if strings.TrimSpace(clientKey) == "" {
		out, err := fn()
		if err != nil {
			return nil, false, err
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal response: %w", err)
		}
		return raw, false, nil
	}

	key := Key(userID, operation, clientKey)
	requestHash := hash(body)
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "operation": operation})

	existing, err := s.lookup(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.RequestHash != requestHash {
			return nil, false, ErrKeyConflict
		}
		switch existing.Status {
		case StatusCompleted:
			log.Debug("replaying idempotent response")
			return json.RawMessage(existing.Response), true, nil
		case StatusPending:
			return nil, false, ErrInProgress
		default:
			if err := s.delete(ctx, key); err != nil {
				return nil, false, err
			}
		}
	}

	now := s.now()
	rec := &Record{
		Key:         key,
		UserID:      userID,
		Operation:   operation,
		RequestHash: requestHash,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.expiry),
		TTL:         now.Add(s.expiry).Unix(),
	}
	if err := s.claim(ctx, rec); err != nil {
		return nil, false, err
	}

	out, err := fn()
	if err != nil {
		if uerr := s.finish(ctx, key, err.Error(), StatusFailed); uerr != nil {
			log.WithError(uerr).Warn("failed to mark idempotency record failed")
		}
		return nil, false, err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		if uerr := s.finish(ctx, key, "failed to marshal response", StatusFailed); uerr != nil {
			log.WithError(uerr).Warn("failed to mark idempotency record failed")
		}
		return nil, false, fmt.Errorf("failed to marshal response: %w", err)
	}
	if err := s.finish(ctx, key, string(raw), StatusCompleted); err != nil {
		log.WithError(err).Warn("failed to update idempotency record")
	}
	return raw, false, nil
}
