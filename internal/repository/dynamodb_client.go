package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dm-relay/internal/domain"
)

const skSession = "SESSION"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// SessionStore defines the per-sender session operations consumed by the relay.
type SessionStore interface {
	Load(ctx context.Context, senderID string) (domain.Session, bool, error)
	Save(ctx context.Context, senderID string, s domain.Session) error
}

// Client wraps a DynamoDB table holding one session item per sender.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

var _ SessionStore = (*Client)(nil)

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// userPK returns the DynamoDB partition key for a sender.
func userPK(senderID string) string {
	return "USER#" + senderID
}

func sessionKey(senderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPK(senderID)},
		"SK": &types.AttributeValueMemberS{Value: skSession},
	}
}

// Load reads the session for a sender. A missing item reports found=false.
func (c *Client) Load(ctx context.Context, senderID string) (domain.Session, bool, error) {
	if strings.TrimSpace(senderID) == "" {
		return domain.Session{}, false, errors.New("repository: Load: sender id is required")
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            sessionKey(senderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}

	s, err := itemToSession(senderID, out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Load unmarshal: %w", err)
	}
	return s, true, nil
}

// Save upserts the whole session item, stamps lastSeen and bumps version.
// The put is conditional on the stored version still being the one s was
// loaded at; an identical retry of an already applied save also passes.
// A lost race returns domain.ErrSessionConflict.
func (c *Client) Save(ctx context.Context, senderID string, s domain.Session) error {
	if strings.TrimSpace(senderID) == "" {
		return errors.New("repository: Save: sender id is required")
	}
	s.SenderID = senderID
	s.LastSeen = c.now().UTC()

	item, err := sessionItem(s)
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	cond, values := saveCondition(s.Version, item)
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(c.tableName),
		Item:                      item,
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  conditionNames,
		ExpressionAttributeValues: values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("repository: Save %s: %w", senderID, domain.ErrSessionConflict)
	}
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

var conditionNames = map[string]string{
	"#pk": "PK",
	"#v":  "version",
	"#p":  "profile",
	"#h":  "history",
	"#sl": "sentLink",
}

// saveCondition accepts a first write, a write against the expected
// version, and a replay of the same content at the next version. Items
// written before versioning have no version attribute and count as 0.
func saveCondition(expected int64, item map[string]types.AttributeValue) (string, map[string]types.AttributeValue) {
	values := map[string]types.AttributeValue{
		":next":     item["version"],
		":profile":  item["profile"],
		":history":  item["history"],
		":sentLink": item["sentLink"],
	}
	replay := "(#v = :next AND #p = :profile AND #h = :history AND #sl = :sentLink)"
	if expected == 0 {
		return "attribute_not_exists(#pk) OR attribute_not_exists(#v) OR " + replay, values
	}
	values[":expected"] = numAttr(expected)
	return "attribute_not_exists(#pk) OR #v = :expected OR " + replay, values
}

func numAttr(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func sessionItem(s domain.Session) (map[string]types.AttributeValue, error) {
	profile, history, err := encodeBlobs(s)
	if err != nil {
		return nil, err
	}
	item := sessionKey(s.SenderID)
	item["senderId"] = &types.AttributeValueMemberS{Value: s.SenderID}
	item["profile"] = &types.AttributeValueMemberS{Value: profile}
	item["history"] = &types.AttributeValueMemberS{Value: history}
	item["sentLink"] = &types.AttributeValueMemberBOOL{Value: s.SentLink}
	item["lastSeen"] = &types.AttributeValueMemberS{Value: s.LastSeen.Format(time.RFC3339Nano)}
	item["version"] = numAttr(s.Version + 1)
	return item, nil
}

// itemToSession converts a DynamoDB attribute map to a Session.
func itemToSession(senderID string, item map[string]types.AttributeValue) (domain.Session, error) {
	history, err := strAttr(item, "history")
	if err != nil {
		return domain.Session{}, err
	}
	profile, _ := strAttr(item, "profile") // allow missing
	p, h, err := decodeBlobs(profile, history)
	if err != nil {
		return domain.Session{}, err
	}

	s := domain.Session{
		SenderID: senderID,
		Profile:  p,
		History:  h,
	}
	if v, ok := item["sentLink"].(*types.AttributeValueMemberBOOL); ok {
		s.SentLink = v.Value
	}
	if raw, err := strAttr(item, "lastSeen"); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			s.LastSeen = ts
		}
	}
	if v, ok := item["version"].(*types.AttributeValueMemberN); ok {
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return domain.Session{}, fmt.Errorf("repository: attribute \"version\": %w", err)
		}
		s.Version = n
	}
	return s, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
