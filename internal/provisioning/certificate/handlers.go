package certificate

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
)

// Resource types served by the handlers in this package.
const (
	TypeCertificate      = "stackforge::acm::certificate"
	TypeValidationRecord = "stackforge::acm::validation_record"
	TypeValidation       = "stackforge::acm::validation"
	TypeAliasRecord      = "stackforge::dns::alias_record"
)

// Register routes the certificate workflow types to handlers backed by w.
func Register(r *provider.Router, w *Workflow) {
	r.Handle(TypeCertificate, &certificateHandler{w: w})
	r.Handle(TypeValidationRecord, &validationRecordHandler{w: w})
	r.Handle(TypeValidation, &validationHandler{w: w})
	r.Handle(TypeAliasRecord, &aliasRecordHandler{zone: w.Zone()})
}

type certificateHandler struct {
	w *Workflow
}

func (h *certificateHandler) Create(ctx context.Context, req provider.Request) (provider.Result, error) {
	domain := req.Inputs.String("domain_name")
	if domain == "" {
		return provider.Result{}, fmt.Errorf("%s: domain_name is required", req.Addr)
	}
	cert, err := h.w.Request(ctx, domain, stringMap(req.Inputs["tags"]))
	if err != nil {
		if cert != nil && cert.ARN != "" {
			// The certificate exists even though its options never showed
			// up; returning the ARN lets the engine track it for cleanup.
			return provider.Result{ID: cert.ARN, Outputs: h.outputs(cert)}, err
		}
		return provider.Result{}, err
	}
	return provider.Result{ID: cert.ARN, Outputs: h.outputs(cert)}, nil
}

func (h *certificateHandler) Read(ctx context.Context, req provider.Request) (provider.Result, error) {
	cert, err := h.w.ca.DescribeCertificate(ctx, req.ID)
	if err != nil {
		return provider.Result{}, err
	}
	if cert.Status == StatusIssued {
		h.w.restore(cert.ARN, StateIssued)
	} else if s, ok := req.PriorOutputs["workflow_state"].(string); ok {
		h.w.restore(cert.ARN, State(s))
	}
	return provider.Result{ID: cert.ARN, Outputs: h.outputs(cert)}, nil
}

// Update has nothing to change remotely: every certificate input except
// tags forces a replacement.
func (h *certificateHandler) Update(_ context.Context, req provider.Request) (provider.Result, error) {
	outputs := maps.Clone(req.PriorOutputs)
	if outputs == nil {
		outputs = graph.Attrs{}
	}
	return provider.Result{ID: req.ID, Outputs: outputs}, nil
}

func (h *certificateHandler) Delete(ctx context.Context, req provider.Request) error {
	return h.w.Delete(ctx, req.ID)
}

func (h *certificateHandler) outputs(cert *Certificate) graph.Attrs {
	out := graph.Attrs{
		"arn":         cert.ARN,
		"domain_name": cert.DomainName,
		"status":      cert.Status,
	}
	if s := h.w.State(cert.ARN); s != "" {
		out["workflow_state"] = string(s)
	}
	if rec, err := PrimaryValidation(cert); err == nil {
		out["validation_record_name"] = rec.Name
		out["validation_record_type"] = rec.Type
		out["validation_record_value"] = rec.Value
	}
	return out
}

type validationRecordHandler struct {
	w *Workflow
}

func (h *validationRecordHandler) Create(ctx context.Context, req provider.Request) (provider.Result, error) {
	rec := validationRecordFrom(req.Inputs)
	arn := req.Inputs.String("certificate_arn")
	if err := h.w.PublishValidationRecord(ctx, req.Inputs.String("zone_id"), arn, rec); err != nil {
		return provider.Result{}, err
	}
	return provider.Result{ID: FQDN(rec.Name), Outputs: graph.Attrs{
		"fqdn":           FQDN(rec.Name),
		"zone_id":        req.Inputs.String("zone_id"),
		"workflow_state": string(h.w.State(arn)),
	}}, nil
}

func (h *validationRecordHandler) Read(_ context.Context, req provider.Request) (provider.Result, error) {
	return provider.Result{ID: req.ID, Outputs: maps.Clone(req.PriorOutputs)}, nil
}

func (h *validationRecordHandler) Update(ctx context.Context, req provider.Request) (provider.Result, error) {
	return h.Create(ctx, req)
}

func (h *validationRecordHandler) Delete(ctx context.Context, req provider.Request) error {
	rec := validationRecordFrom(req.PriorInputs)
	err := h.w.zone.DeleteRecord(ctx, req.PriorInputs.String("zone_id"), rec.Record())
	if errors.Is(err, provider.ErrNotFound) {
		return nil
	}
	return err
}

func validationRecordFrom(in graph.Attrs) ValidationRecord {
	return ValidationRecord{
		Name:  in.String("name"),
		Type:  in.String("type"),
		Value: in.String("value"),
	}
}

type validationHandler struct {
	w *Workflow
}

func (h *validationHandler) Create(ctx context.Context, req provider.Request) (provider.Result, error) {
	arn := req.Inputs.String("certificate_arn")
	var fqdn string
	if names := req.Inputs.Strings("validation_record_fqdns"); len(names) > 0 {
		fqdn = names[0]
	}
	h.w.restore(arn, StateAwaitingDNSPropagation)
	if err := h.w.AwaitValidation(ctx, arn, fqdn); err != nil {
		return provider.Result{}, err
	}
	return provider.Result{ID: arn, Outputs: graph.Attrs{
		"certificate_arn": arn,
		"workflow_state":  string(StateIssued),
	}}, nil
}

func (h *validationHandler) Read(ctx context.Context, req provider.Request) (provider.Result, error) {
	cert, err := h.w.ca.DescribeCertificate(ctx, req.ID)
	if err != nil {
		return provider.Result{}, err
	}
	state := StateAwaitingDNSPropagation
	if cert.Status == StatusIssued {
		state = StateIssued
	}
	h.w.restore(cert.ARN, state)
	return provider.Result{ID: cert.ARN, Outputs: graph.Attrs{
		"certificate_arn": cert.ARN,
		"workflow_state":  string(state),
	}}, nil
}

func (h *validationHandler) Update(ctx context.Context, req provider.Request) (provider.Result, error) {
	return h.Create(ctx, req)
}

// Delete is a no-op: the validation node only records a completed wait.
func (h *validationHandler) Delete(context.Context, provider.Request) error {
	return nil
}

type aliasRecordHandler struct {
	zone DNSZone
}

func (h *aliasRecordHandler) Create(ctx context.Context, req provider.Request) (provider.Result, error) {
	rec := aliasRecordFrom(req.Inputs)
	if err := h.zone.UpsertRecord(ctx, req.Inputs.String("zone_id"), rec); err != nil {
		return provider.Result{}, fmt.Errorf("upsert alias record %s: %w", rec.Name, err)
	}
	return provider.Result{ID: FQDN(rec.Name), Outputs: graph.Attrs{
		"fqdn":    FQDN(rec.Name),
		"zone_id": req.Inputs.String("zone_id"),
	}}, nil
}

func (h *aliasRecordHandler) Read(_ context.Context, req provider.Request) (provider.Result, error) {
	return provider.Result{ID: req.ID, Outputs: maps.Clone(req.PriorOutputs)}, nil
}

func (h *aliasRecordHandler) Update(ctx context.Context, req provider.Request) (provider.Result, error) {
	return h.Create(ctx, req)
}

func (h *aliasRecordHandler) Delete(ctx context.Context, req provider.Request) error {
	err := h.zone.DeleteRecord(ctx, req.PriorInputs.String("zone_id"), aliasRecordFrom(req.PriorInputs))
	if errors.Is(err, provider.ErrNotFound) {
		return nil
	}
	return err
}

func aliasRecordFrom(in graph.Attrs) Record {
	return Record{
		Name: in.String("name"),
		Type: in.String("type"),
		Alias: &AliasTarget{
			DNSName:              in.String("alias_dns_name"),
			HostedZoneID:         in.String("alias_zone_id"),
			EvaluateTargetHealth: in.Bool("evaluate_target_health"),
		},
	}
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, e := range m {
		out[k] = fmt.Sprint(e)
	}
	return out
}
