package worker

import (
	"errors"
	"fmt"

	"github.com/aescanero/dago-node-extract/internal/rule"
	"github.com/aescanero/dago-node-extract/internal/selector"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// JobType selects the engine call a job maps to.
type JobType string

const (
	JobParse JobType = "parse" // single rule
	JobBatch JobType = "batch" // named rules
	JobArray JobType = "array" // item rule plus named rules per item
)

// ErrInvalidJob marks a job payload that cannot be processed.
var ErrInvalidJob = errors.New("invalid job")

// Job is an extraction request read from the work stream.
//
// Wire format:
//
//	{
//	  "id": "optional, generated when missing",
//	  "document": "<html>..." or a JSON value,
//	  "document_key": "key of a stored document, instead of document",
//	  "content_type": "html" | "json" | "text",
//	  "rule": "@css:h1@text",
//	  "rules": {"title": "@css:h1@text", ...},
//	  "item_rule": "@css:li.product",
//	  "variables": {...}
//	}
//
// "fields" is accepted as an alias of "rules". Rule order follows the
// payload.
type Job struct {
	ID          string
	Type        JobType
	Document    string
	DocumentKey string
	ContentType selector.ContentType
	Rule        string
	ItemRule    string
	Fields      rule.Fields
	Variables   map[string]interface{}
}

// ParseJob decodes a job payload.
func ParseJob(data string) (*Job, error) {
	if !gjson.Valid(data) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidJob)
	}
	root := gjson.Parse(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: payload must be an object", ErrInvalidJob)
	}

	job := &Job{
		ID:          root.Get("id").String(),
		DocumentKey: root.Get("document_key").String(),
		ContentType: selector.ContentType(root.Get("content_type").String()),
		Rule:        root.Get("rule").String(),
		ItemRule:    root.Get("item_rule").String(),
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	switch doc := root.Get("document"); {
	case doc.Type == gjson.String:
		job.Document = doc.String()
	case doc.IsObject() || doc.IsArray():
		job.Document = doc.Raw
		if job.ContentType == selector.ContentAuto {
			job.ContentType = selector.ContentJSON
		}
	case doc.Exists() && doc.Type != gjson.Null:
		return nil, fmt.Errorf("%w: document must be a string, object or array", ErrInvalidJob)
	}
	if job.Document == "" && job.DocumentKey == "" {
		return nil, fmt.Errorf("%w: document or document_key is required", ErrInvalidJob)
	}

	switch job.ContentType {
	case selector.ContentAuto, selector.ContentHTML, selector.ContentJSON, selector.ContentText:
	default:
		return nil, fmt.Errorf("%w: unknown content_type %q", ErrInvalidJob, job.ContentType)
	}

	fields, err := parseFields(root)
	if err != nil {
		return nil, err
	}
	job.Fields = fields

	if vars := root.Get("variables"); vars.Exists() {
		m, ok := vars.Value().(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: variables must be an object", ErrInvalidJob)
		}
		job.Variables = m
	}

	switch {
	case job.ItemRule != "":
		if len(job.Fields) == 0 {
			return nil, fmt.Errorf("%w: item_rule requires rules", ErrInvalidJob)
		}
		job.Type = JobArray
	case len(job.Fields) > 0:
		job.Type = JobBatch
	case job.Rule != "":
		job.Type = JobParse
	default:
		return nil, fmt.Errorf("%w: one of rule, rules or item_rule is required", ErrInvalidJob)
	}
	return job, nil
}

// parseFields reads "rules" (or "fields") as an object of key → rule, or an
// array of {"key", "rule"} objects, keeping payload order.
func parseFields(root gjson.Result) (rule.Fields, error) {
	r := root.Get("rules")
	if !r.Exists() {
		r = root.Get("fields")
	}
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}

	var fields rule.Fields
	var err error
	switch {
	case r.IsObject():
		r.ForEach(func(key, value gjson.Result) bool {
			if value.Type != gjson.String {
				err = fmt.Errorf("%w: rule of %q must be a string", ErrInvalidJob, key.String())
				return false
			}
			fields = append(fields, rule.Field{Key: key.String(), Rule: value.String()})
			return true
		})
	case r.IsArray():
		r.ForEach(func(_, value gjson.Result) bool {
			key, ruleStr := value.Get("key").String(), value.Get("rule").String()
			if key == "" || ruleStr == "" {
				err = fmt.Errorf("%w: rules entries need key and rule", ErrInvalidJob)
				return false
			}
			fields = append(fields, rule.Field{Key: key, Rule: ruleStr})
			return true
		})
	default:
		return nil, fmt.Errorf("%w: rules must be an object or array", ErrInvalidJob)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Key] {
			return nil, fmt.Errorf("%w: duplicate rule key %q", ErrInvalidJob, f.Key)
		}
		seen[f.Key] = true
	}
	return fields, nil
}
