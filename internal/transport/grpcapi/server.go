package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/escrow"
	"github.com/xela07ax/treasury-vesting/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service: то, что gRPC вход вызывает у леджера.
type Service interface {
	AddVesting(ctx context.Context, caller, beneficiary domain.Address, releaseTime int64, amount uint64) (*domain.Receipt, error)
	Release(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	Vesting(ctx context.Context, id uint64) domain.VestingEntry
	AddVestingRequest(ctx context.Context, caller, beneficiary domain.Address, releaseTime int64, amount uint64) (*domain.Receipt, error)
	ApproveVestingRequest(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	StartVesting(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	VestingRequest(ctx context.Context, id uint64) domain.VestingRequest
	AddWithdrawRequest(ctx context.Context, caller domain.Address, amount uint64) (*domain.Receipt, error)
	ApproveWithdrawRequest(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	ProcessApprovedRequest(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	WithdrawRequest(ctx context.Context, id uint64) domain.WithdrawRequest
}

type LedgerServer struct {
	svc    Service
	logger *zap.Logger
}

func NewLedgerServer(svc Service, logger *zap.Logger) *LedgerServer {
	return &LedgerServer{svc: svc, logger: logger.Named("grpc-ledger")}
}

var errBadArgument = errors.New("bad argument")

func (s *LedgerServer) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, ok := auth.CallerFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "caller is unknown")
	}

	args := req.GetFields()
	op := args["op"].GetStringValue()

	result, err := s.dispatch(ctx, caller, op, args)
	if err != nil {
		code := CodeFor(err)
		if code == codes.Internal {
			s.logger.Error("ledger operation failed", zap.String("op", op), zap.Error(err))
		}
		return nil, status.Error(code, err.Error())
	}

	// Собираем ответ в Protobuf через JSON-представление
	b, err := json.Marshal(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func (s *LedgerServer) dispatch(ctx context.Context, caller domain.Address, op string, args map[string]*structpb.Value) (interface{}, error) {
	switch op {
	case "addVesting", "addVestingRequest":
		beneficiary := domain.ParseAddress(args["beneficiary"].GetStringValue())
		if beneficiary.IsZero() {
			return nil, fmt.Errorf("beneficiary is required: %w", errBadArgument)
		}
		releaseTime, err := unixTimeArg(args, "release_time")
		if err != nil {
			return nil, err
		}
		amount, err := uintArg(args, "amount")
		if err != nil {
			return nil, err
		}
		if op == "addVesting" {
			return s.svc.AddVesting(ctx, caller, beneficiary, releaseTime, amount)
		}
		return s.svc.AddVestingRequest(ctx, caller, beneficiary, releaseTime, amount)

	case "addWithdrawRequest":
		amount, err := uintArg(args, "amount")
		if err != nil {
			return nil, err
		}
		return s.svc.AddWithdrawRequest(ctx, caller, amount)
	}

	byID := map[string]func(context.Context, domain.Address, uint64) (*domain.Receipt, error){
		"release":                s.svc.Release,
		"approveVestingRequest":  s.svc.ApproveVestingRequest,
		"startVesting":           s.svc.StartVesting,
		"approveWithdrawRequest": s.svc.ApproveWithdrawRequest,
		"processApprovedRequest": s.svc.ProcessApprovedRequest,
	}
	reads := map[string]func(uint64) interface{}{
		"vesting":         func(id uint64) interface{} { return s.svc.Vesting(ctx, id) },
		"vestingRequest":  func(id uint64) interface{} { return s.svc.VestingRequest(ctx, id) },
		"withdrawRequest": func(id uint64) interface{} { return s.svc.WithdrawRequest(ctx, id) },
	}

	fn, isWrite := byID[op]
	read, isRead := reads[op]
	if !isWrite && !isRead {
		return nil, fmt.Errorf("unknown op %q: %w", op, errBadArgument)
	}

	id, err := uintArg(args, "id")
	if err != nil {
		return nil, err
	}
	if isRead {
		return read(id), nil
	}
	return fn(ctx, caller, id)
}

// uintArg принимает число или строку: строка сохраняет точность выше 2^53.
func uintArg(args map[string]*structpb.Value, key string) (uint64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%s is required: %w", key, errBadArgument)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %v: %w", key, err, errBadArgument)
		}
		return n, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f >= math.MaxUint64 {
			return 0, fmt.Errorf("%s must be a non-negative integer: %w", key, errBadArgument)
		}
		return uint64(f), nil
	default:
		return 0, fmt.Errorf("%s must be a number: %w", key, errBadArgument)
	}
}

// unixTimeArg читает обязательную метку времени в секундах. Значения вне int64
// отклоняются: после приведения они стали бы прошлым и сняли бы блокировку по времени.
func unixTimeArg(args map[string]*structpb.Value, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%s is required: %w", key, errBadArgument)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%s must be a non-negative int64: %w", key, errBadArgument)
		}
		return n, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
			return 0, fmt.Errorf("%s must be a non-negative int64: %w", key, errBadArgument)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("%s must be a number: %w", key, errBadArgument)
	}
}

// CodeFor сопоставляет ошибку леджера gRPC коду.
func CodeFor(err error) codes.Code {
	switch {
	case errors.Is(err, errBadArgument):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrSelfApproval):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrNotYetApproved), errors.Is(err, domain.ErrNotYetReleasable):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrDuplicateApproval),
		errors.Is(err, domain.ErrAlreadyApproved),
		errors.Is(err, domain.ErrAlreadyReleased),
		errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrAlreadyStarted):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrInsufficientBalance):
		return codes.ResourceExhausted
	case errors.Is(err, domain.ErrTransferFailed):
		return codes.Aborted
	case errors.Is(err, escrow.ErrThrottled):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
