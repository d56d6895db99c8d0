package extraction

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
)

// extractMethod is the fully-qualified gRPC method the vendor's
// extraction service exposes, mirroring pkg/agent/llm_grpc.go's thin
// client translating Go structs to/from protobuf messages over a single
// RPC method rather than a generated multi-method service interface.
const extractMethod = "/pipeline.extraction.v1.ExtractionService/Extract"

// GRPCProvider is the "real" Provider implementation: a thin gRPC client
// that marshals requests into a structpb.Struct (the vendor's wire
// contract is schema-flexible key/value, so no generated .proto stub is
// needed beyond the well-known Struct type already compiled into
// google.golang.org/protobuf) and parses the structured response back
// into a Result.
type GRPCProvider struct {
	conn          *grpc.ClientConn
	timeout       time.Duration
	maxInputChars int
}

// NewGRPCProvider dials target (e.g. "extraction-vendor:9443") and
// returns a ready Provider. Callers must call Close when done.
func NewGRPCProvider(target string, timeout time.Duration, maxInputChars int, opts ...grpc.DialOption) (*GRPCProvider, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("extraction: dial %s: %w", target, err)
	}
	return &GRPCProvider{conn: conn, timeout: timeout, maxInputChars: maxInputChars}, nil
}

// Close releases the underlying gRPC connection.
func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}

func (p *GRPCProvider) Extract(ctx context.Context, text string, hints Hints) (*Result, error) {
	if p.maxInputChars > 0 && len(text) > p.maxInputChars {
		return nil, pipelineerr.Validation("extraction: input exceeds maximum size", nil)
	}

	allowedKinds := make([]any, 0, len(hints.AllowedKinds))
	for _, k := range hints.AllowedKinds {
		allowedKinds = append(allowedKinds, string(k))
	}

	reqStruct, err := structpb.NewStruct(map[string]any{
		"text":          WrapTranscript(text),
		"allowed_kinds": allowedKinds,
		"source_hint":   string(hints.SourceHint),
	})
	if err != nil {
		return nil, pipelineerr.Internal("extraction: build request", err)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	respStruct := &structpb.Struct{}
	if err := p.conn.Invoke(callCtx, extractMethod, reqStruct, respStruct); err != nil {
		if callCtx.Err() != nil {
			return nil, pipelineerr.Transient("extraction: request timed out", err)
		}
		return nil, pipelineerr.Transient("extraction: vendor call failed", err)
	}

	return parseResponse(respStruct)
}

func parseResponse(s *structpb.Struct) (*Result, error) {
	result := &Result{}
	byName := map[string]int{}

	for _, v := range s.GetFields()["entities"].GetListValue().GetValues() {
		fields := v.GetStructValue().GetFields()
		kind := models.EntityKind(fields["kind"].GetStringValue())
		name := fields["name"].GetStringValue()
		if !kind.Valid() || name == "" {
			result.Warnings = append(result.Warnings, "entity missing required field, skipped")
			continue
		}
		props := map[string]any{}
		for k, pv := range fields["properties"].GetStructValue().GetFields() {
			props[k] = pv.AsInterface()
		}
		byName[name] = len(result.Entities)
		result.Entities = append(result.Entities, models.Entity{
			Kind:       kind,
			Name:       name,
			Properties: props,
			Confidence: fields["confidence"].GetNumberValue(),
		})
	}

	// Each relationship carries its source entity's name so it can be
	// attached to Entity.Relationships rather than kept in a separate
	// top-level list disconnected from its origin.
	for _, v := range s.GetFields()["relationships"].GetListValue().GetValues() {
		fields := v.GetStructValue().GetFields()
		sourceName := fields["source_name"].GetStringValue()
		idx, ok := byName[sourceName]
		if !ok {
			result.Warnings = append(result.Warnings, "relationship references unknown source entity: "+sourceName)
			continue
		}
		result.Entities[idx].Relationships = append(result.Entities[idx].Relationships, models.RelRef{
			TargetName:    fields["target_name"].GetStringValue(),
			TargetKind:    models.EntityKind(fields["target_kind"].GetStringValue()),
			RelationLabel: fields["relation_label"].GetStringValue(),
		})
	}

	for _, v := range s.GetFields()["warnings"].GetListValue().GetValues() {
		result.Warnings = append(result.Warnings, v.GetStringValue())
	}

	return result, nil
}
