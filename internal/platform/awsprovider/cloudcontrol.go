package awsprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudcontrol"
	cctypes "github.com/aws/aws-sdk-go-v2/service/cloudcontrol/types"
	"github.com/google/uuid"

	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/state"
	"github.com/imamik/stackforge/internal/util/errdefs"
)

// Defaults for polling asynchronous Cloud Control requests.
const (
	DefaultPollInterval     = 5 * time.Second
	DefaultOperationTimeout = 20 * time.Minute
)

// CloudControlAPI is the subset of the Cloud Control client used here.
type CloudControlAPI interface {
	CreateResource(ctx context.Context, in *cloudcontrol.CreateResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.CreateResourceOutput, error)
	GetResource(ctx context.Context, in *cloudcontrol.GetResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.GetResourceOutput, error)
	UpdateResource(ctx context.Context, in *cloudcontrol.UpdateResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.UpdateResourceOutput, error)
	DeleteResource(ctx context.Context, in *cloudcontrol.DeleteResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.DeleteResourceOutput, error)
	GetResourceRequestStatus(ctx context.Context, in *cloudcontrol.GetResourceRequestStatusInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.GetResourceRequestStatusOutput, error)
}

// CloudControl is a provider.Provider for AWS::* resource types.
type CloudControl struct {
	api          CloudControlAPI
	pollInterval time.Duration
	timeout      time.Duration
}

// CloudControlOption customises a CloudControl provider.
type CloudControlOption func(*CloudControl)

// WithPollInterval sets how often request status is polled.
func WithPollInterval(d time.Duration) CloudControlOption {
	return func(c *CloudControl) {
		c.pollInterval = d
	}
}

// WithOperationTimeout bounds how long one request may stay in progress.
func WithOperationTimeout(d time.Duration) CloudControlOption {
	return func(c *CloudControl) {
		c.timeout = d
	}
}

// NewCloudControl creates a provider from a loaded AWS config.
func NewCloudControl(cfg aws.Config, opts ...CloudControlOption) *CloudControl {
	return NewCloudControlFromAPI(cloudcontrol.NewFromConfig(cfg), opts...)
}

// NewCloudControlFromAPI creates a provider over an existing client.
func NewCloudControlFromAPI(api CloudControlAPI, opts ...CloudControlOption) *CloudControl {
	c := &CloudControl{api: api, pollInterval: DefaultPollInterval, timeout: DefaultOperationTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create implements provider.Provider. A resource whose identifier is
// declared and that already exists is adopted and converged to the inputs.
func (c *CloudControl) Create(ctx context.Context, req provider.Request) (provider.Result, error) {
	node := req.Addr.String()
	desired, err := json.Marshal(req.Inputs)
	if err != nil {
		return provider.Result{}, fmt.Errorf("encode desired state of %s: %w", node, err)
	}

	out, err := c.api.CreateResource(ctx, &cloudcontrol.CreateResourceInput{
		TypeName:     aws.String(req.Type),
		DesiredState: aws.String(string(desired)),
		ClientToken:  aws.String(uuid.NewString()),
	})
	if err != nil {
		if isCode(err, "AlreadyExistsException") {
			return c.adopt(ctx, req, err)
		}
		return provider.Result{}, classify(node, provider.OpCreate, err)
	}

	ev, err := c.await(ctx, node, provider.OpCreate, out.ProgressEvent)
	if err != nil {
		if isCode(err, string(cctypes.HandlerErrorCodeAlreadyExists)) {
			return c.adopt(ctx, req, err)
		}
		if id := aws.ToString(ev.Identifier); id != "" {
			return provider.Result{ID: id}, err
		}
		return provider.Result{}, err
	}
	return c.read(ctx, node, req.Type, aws.ToString(ev.Identifier))
}

func (c *CloudControl) adopt(ctx context.Context, req provider.Request, createErr error) (provider.Result, error) {
	node := req.Addr.String()
	schema, _ := provider.SchemaFor(req.Type)
	id := req.Inputs.String(schema.Identifier)
	if id == "" {
		return provider.Result{}, classify(node, provider.OpCreate, createErr)
	}

	current, err := c.read(ctx, node, req.Type, id)
	if err != nil {
		return provider.Result{}, err
	}
	patch, err := diffPatch(current.Outputs, req.Inputs, true)
	if err != nil {
		return provider.Result{}, err
	}
	if len(patch) == 0 {
		return current, nil
	}
	return c.patch(ctx, node, req.Type, id, patch)
}

// Read implements provider.Provider.
func (c *CloudControl) Read(ctx context.Context, req provider.Request) (provider.Result, error) {
	return c.read(ctx, req.Addr.String(), req.Type, req.ID)
}

func (c *CloudControl) read(ctx context.Context, node, typeName, id string) (provider.Result, error) {
	out, err := c.api.GetResource(ctx, &cloudcontrol.GetResourceInput{
		TypeName:   aws.String(typeName),
		Identifier: aws.String(id),
	})
	if err != nil {
		return provider.Result{}, classify(node, provider.OpRead, err)
	}

	outputs := graph.Attrs{}
	if out.ResourceDescription != nil && out.ResourceDescription.Properties != nil {
		if err := json.Unmarshal([]byte(*out.ResourceDescription.Properties), &outputs); err != nil {
			return provider.Result{}, fmt.Errorf("decode properties of %s: %w", node, err)
		}
		if rid := aws.ToString(out.ResourceDescription.Identifier); rid != "" {
			id = rid
		}
	}
	outputs["id"] = id
	return provider.Result{ID: id, Outputs: outputs}, nil
}

// Update implements provider.Provider. Only the attributes that differ
// from the prior inputs are sent.
func (c *CloudControl) Update(ctx context.Context, req provider.Request) (provider.Result, error) {
	node := req.Addr.String()
	patch, err := diffPatch(req.PriorInputs, req.Inputs, false)
	if err != nil {
		return provider.Result{}, err
	}
	if len(patch) == 0 {
		return c.read(ctx, node, req.Type, req.ID)
	}
	return c.patch(ctx, node, req.Type, req.ID, patch)
}

func (c *CloudControl) patch(ctx context.Context, node, typeName, id string, patch []patchOp) (provider.Result, error) {
	doc, err := json.Marshal(patch)
	if err != nil {
		return provider.Result{}, fmt.Errorf("encode patch for %s: %w", node, err)
	}
	out, err := c.api.UpdateResource(ctx, &cloudcontrol.UpdateResourceInput{
		TypeName:      aws.String(typeName),
		Identifier:    aws.String(id),
		PatchDocument: aws.String(string(doc)),
		ClientToken:   aws.String(uuid.NewString()),
	})
	if err != nil {
		return provider.Result{}, classify(node, provider.OpUpdate, err)
	}
	if _, err := c.await(ctx, node, provider.OpUpdate, out.ProgressEvent); err != nil {
		return provider.Result{}, err
	}
	return c.read(ctx, node, typeName, id)
}

// Delete implements provider.Provider.
func (c *CloudControl) Delete(ctx context.Context, req provider.Request) error {
	node := req.Addr.String()
	out, err := c.api.DeleteResource(ctx, &cloudcontrol.DeleteResourceInput{
		TypeName:    aws.String(req.Type),
		Identifier:  aws.String(req.ID),
		ClientToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return classify(node, provider.OpDelete, err)
	}
	_, err = c.await(ctx, node, provider.OpDelete, out.ProgressEvent)
	return err
}

// await polls a request until it leaves the pending states. The returned
// event is never nil.
func (c *CloudControl) await(ctx context.Context, node string, op provider.Operation, ev *cctypes.ProgressEvent) (*cctypes.ProgressEvent, error) {
	if ev == nil {
		return &cctypes.ProgressEvent{}, &errdefs.ProviderAPIError{Node: node, Operation: string(op), Err: errors.New("response carried no progress event")}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		switch ev.OperationStatus {
		case cctypes.OperationStatusSuccess:
			return ev, nil
		case cctypes.OperationStatusFailed, cctypes.OperationStatusCancelComplete:
			return ev, codeError(node, op, string(ev.ErrorCode),
				fmt.Errorf("request %s %s: %s", aws.ToString(ev.RequestToken), ev.OperationStatus, aws.ToString(ev.StatusMessage)))
		}

		select {
		case <-ctx.Done():
			return ev, &errdefs.ProviderAPIError{
				Node: node, Operation: string(op), Code: "Timeout",
				Err: fmt.Errorf("request %s still %s: %w", aws.ToString(ev.RequestToken), ev.OperationStatus, ctx.Err()),
			}
		case <-ticker.C:
		}

		out, err := c.api.GetResourceRequestStatus(ctx, &cloudcontrol.GetResourceRequestStatusInput{
			RequestToken: ev.RequestToken,
		})
		if err != nil {
			if errdefs.IsRetryable(classify(node, op, err)) {
				continue
			}
			return ev, classify(node, op, err)
		}
		if out.ProgressEvent != nil {
			ev = out.ProgressEvent
		}
	}
}

type patchOp struct {
	Op    string
	Path  string
	Value any
}

// MarshalJSON keeps zero values such as false or 0 on add and replace.
func (p patchOp) MarshalJSON() ([]byte, error) {
	if p.Op == "remove" {
		return json.Marshal(map[string]any{"op": p.Op, "path": p.Path})
	}
	return json.Marshal(map[string]any{"op": p.Op, "path": p.Path, "value": p.Value})
}

// diffPatch returns the RFC 6902 operations turning prior into next at the
// top level. With declaredOnly, attributes absent from next are left alone,
// which is how an adopted resource keeps properties it was not declared with.
func diffPatch(prior, next map[string]any, declaredOnly bool) ([]patchOp, error) {
	from, err := state.Canonical(prior)
	if err != nil {
		return nil, err
	}
	to, err := state.Canonical(next)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(from)+len(to))
	for k := range to {
		keys = append(keys, k)
	}
	for k := range from {
		if _, ok := to[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var ops []patchOp
	for _, k := range keys {
		if k == "id" {
			continue
		}
		path := "/" + strings.NewReplacer("~", "~0", "/", "~1").Replace(k)
		oldVal, had := from[k]
		newVal, has := to[k]
		switch {
		case has && !had:
			ops = append(ops, patchOp{Op: "add", Path: path, Value: newVal})
		case has && !reflect.DeepEqual(oldVal, newVal):
			ops = append(ops, patchOp{Op: "replace", Path: path, Value: newVal})
		case !has && !declaredOnly:
			ops = append(ops, patchOp{Op: "remove", Path: path})
		}
	}
	return ops, nil
}
