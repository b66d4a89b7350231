package proof

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/services/audit"
	"cashback-controlplane/services/order"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const MaxFileSize = 10 << 20

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type Service struct {
	orders *order.Service
	store  ObjectStore
	node   *snowflake.Node
	audit  audit.Recorder
}

type ServiceParams struct {
	fx.In
	Orders *order.Service
	Store  ObjectStore
	Node   *snowflake.Node
	Audit  audit.Recorder
}

func NewService(p ServiceParams) *Service {
	return &Service{
		orders: p.Orders,
		store:  p.Store,
		node:   p.Node,
		audit:  p.Audit,
	}
}

type File struct {
	Reader      io.Reader
	Size        int64
	ContentType string
}

// ObjectKey is where a proof upload is stored.
func ObjectKey(orderID int64, uploadID snowflake.ID) string {
	return fmt.Sprintf("proofs/%d/%d", orderID, uploadID.Int64())
}

// SubmitProof stores a purchase screenshot and moves the order to
// PROOF_SUBMITTED. A rejected or in-review order may be resubmitted.
func (s *Service) SubmitProof(ctx context.Context, orderID int64, actor audit.Actor, f File) (*order.Order, error) {
	if !allowedTypes[f.ContentType] {
		return nil, errutil.New(errutil.StatusUnsupportedMediaType, "proof must be a jpeg, png or webp image")
	}
	if f.Size <= 0 || f.Size > MaxFileSize {
		return nil, errutil.BadRequest("proof file is empty or too large", nil)
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Frozen {
		return nil, order.ErrFrozen(orderID)
	}
	if !order.CanTransition(o.WorkflowStatus, order.StatusProofSubmitted) {
		return nil, order.ErrIllegalTransition(o.WorkflowStatus, order.StatusProofSubmitted)
	}

	key := ObjectKey(orderID, s.node.Generate())
	if err := s.store.Put(ctx, key, f.Reader, f.Size, f.ContentType); err != nil {
		logger.FromContext(ctx).Error("failed to store proof", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, errutil.ServiceUnavailable("proof storage unavailable", err)
	}

	updated, err := s.orders.Transition(ctx, order.TransitionRequest{
		OrderID: orderID,
		From:    o.WorkflowStatus,
		To:      order.StatusProofSubmitted,
		Actor:   actor,
		Details: order.Details{ProofKey: key},
	})
	if err != nil {
		// the uploaded object stays behind unreferenced
		return nil, err
	}

	s.audit.Record(ctx, audit.Record{
		Action:     audit.ActionOrderProofSubmitted,
		EntityType: audit.EntityOrder,
		EntityID:   strconv.FormatInt(orderID, 10),
		Actor:      actor,
		Metadata:   map[string]any{"object_key": key, "resubmission": o.WorkflowStatus != order.StatusOrdered},
	})
	return updated, nil
}
