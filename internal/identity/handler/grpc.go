// Package handler exposes the credential lifecycle as the gRPC service
// portal.identity.v1.CredentialService.
package handler

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	accountdomain "identity-portal/internal/account/domain"
	"identity-portal/internal/identity/domain"
	"identity-portal/internal/identity/merge"
	"identity-portal/internal/identity/service"
	"identity-portal/internal/logging"
	"identity-portal/internal/security"
	"identity-portal/internal/server/interceptors"
	sessiondomain "identity-portal/internal/session/domain"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "portal.identity.v1.CredentialService"

// FederationKeyHeader carries the shared key of the trusted sign-in frontend on FederatedSignIn.
const FederationKeyHeader = "x-federation-key"

// CredentialFlows is the credential lifecycle the handler serves.
type CredentialFlows interface {
	Register(ctx context.Context, name, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	SendTwoFactorCode(ctx context.Context, email string) error
	VerifyTwoFactorCode(ctx context.Context, email, code string) (*sessiondomain.Grant, error)
	FederatedSignIn(ctx context.Context, id merge.FederatedIdentity) (*sessiondomain.Grant, error)
}

// CredentialServiceServer is the server API of portal.identity.v1.CredentialService.
type CredentialServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	VerifyEmail(context.Context, *TokenRequest) (*Empty, error)
	ResendVerification(context.Context, *EmailRequest) (*Empty, error)
	RequestPasswordReset(context.Context, *EmailRequest) (*Empty, error)
	ValidateResetToken(context.Context, *TokenRequest) (*ValidateResetTokenResponse, error)
	ResetPassword(context.Context, *ResetPasswordRequest) (*Empty, error)
	SendTwoFactorCode(context.Context, *EmailRequest) (*Empty, error)
	VerifyTwoFactorCode(context.Context, *VerifyTwoFactorCodeRequest) (*SessionResponse, error)
	FederatedSignIn(context.Context, *FederatedSignInRequest) (*SessionResponse, error)
	GetSession(context.Context, *GetSessionRequest) (*SessionResponse, error)
}

// Server implements CredentialServiceServer on top of the credential flows.
type Server struct {
	flows   CredentialFlows
	fedHash string
	log     logging.Logger
}

// NewServer returns a credential gRPC server. If flows is nil, every flow RPC returns Unimplemented.
// federationKey authenticates the frontend allowed to call FederatedSignIn; when empty,
// FederatedSignIn is refused.
func NewServer(flows CredentialFlows, federationKey string, log logging.Logger) *Server {
	s := &Server{flows: flows, log: logging.OrDiscard(log)}
	if federationKey != "" {
		s.fedHash = security.HashSecret(federationKey)
	}
	return s
}

// PublicMethods returns the full method names callable without a session.
func PublicMethods() map[string]bool {
	m := make(map[string]bool, len(ServiceDesc.Methods))
	for _, md := range ServiceDesc.Methods {
		if md.MethodName != "GetSession" {
			m["/"+ServiceName+"/"+md.MethodName] = true
		}
	}
	return m
}

func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method Register not implemented")
	}
	id, err := s.flows.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &RegisterResponse{AccountID: id}, nil
}

func (s *Server) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method Login not implemented")
	}
	res, err := s.flows.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &LoginResponse{
		Status:    string(res.Status),
		AccountID: res.AccountID,
		Email:     res.Email,
		Session:   sessionFromGrant(res.Session),
	}, nil
}

func (s *Server) VerifyEmail(ctx context.Context, req *TokenRequest) (*Empty, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method VerifyEmail not implemented")
	}
	if err := s.flows.VerifyEmail(ctx, req.Token); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) ResendVerification(ctx context.Context, req *EmailRequest) (*Empty, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method ResendVerification not implemented")
	}
	if err := s.flows.ResendVerification(ctx, req.Email); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) RequestPasswordReset(ctx context.Context, req *EmailRequest) (*Empty, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method RequestPasswordReset not implemented")
	}
	if err := s.flows.RequestPasswordReset(ctx, req.Email); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

// ValidateResetToken reports whether a reset link is still usable. An invalid or
// expired token is a normal answer, not an error.
func (s *Server) ValidateResetToken(ctx context.Context, req *TokenRequest) (*ValidateResetTokenResponse, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method ValidateResetToken not implemented")
	}
	err := s.flows.ValidateResetToken(ctx, req.Token)
	switch {
	case err == nil:
		return &ValidateResetTokenResponse{Valid: true}, nil
	case errors.Is(err, domain.ErrInvalidOrExpired), errors.Is(err, domain.ErrNoCredentials):
		return &ValidateResetTokenResponse{Valid: false}, nil
	}
	return nil, s.toStatus(ctx, err)
}

func (s *Server) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*Empty, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method ResetPassword not implemented")
	}
	if err := s.flows.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) SendTwoFactorCode(ctx context.Context, req *EmailRequest) (*Empty, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method SendTwoFactorCode not implemented")
	}
	if err := s.flows.SendTwoFactorCode(ctx, req.Email); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) VerifyTwoFactorCode(ctx context.Context, req *VerifyTwoFactorCodeRequest) (*SessionResponse, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method VerifyTwoFactorCode not implemented")
	}
	grant, err := s.flows.VerifyTwoFactorCode(ctx, req.Email, req.Code)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &SessionResponse{Session: sessionFromGrant(grant)}, nil
}

// FederatedSignIn is called by the sign-in frontend after a provider
// authenticated the user. The caller must present the federation key.
func (s *Server) FederatedSignIn(ctx context.Context, req *FederatedSignInRequest) (*SessionResponse, error) {
	if s.flows == nil {
		return nil, status.Error(codes.Unimplemented, "method FederatedSignIn not implemented")
	}
	if !s.trustedFrontend(ctx) {
		return nil, status.Error(codes.PermissionDenied, "federated sign-in requires the federation key")
	}
	grant, err := s.flows.FederatedSignIn(ctx, merge.FederatedIdentity{
		Provider: accountdomain.Method(strings.ToLower(strings.TrimSpace(req.Provider))),
		Email:    req.Email,
		Name:     req.Name,
		Image:    req.Image,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &SessionResponse{Session: sessionFromGrant(grant)}, nil
}

// GetSession returns the claims of the caller's session.
func (s *Server) GetSession(ctx context.Context, req *GetSessionRequest) (*SessionResponse, error) {
	claims, ok := interceptors.SessionFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	return &SessionResponse{Session: sessionFromClaims(claims)}, nil
}

func (s *Server) trustedFrontend(ctx context.Context) bool {
	if s.fedHash == "" {
		return false
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return false
	}
	vals := md.Get(FederationKeyHeader)
	return len(vals) == 1 && security.SecretHashEqual(vals[0], s.fedHash)
}

// toStatus maps flow errors to gRPC status. Unexpected errors are logged and hidden.
func (s *Server) toStatus(ctx context.Context, err error) error {
	var (
		ve     *domain.ValidationError
		mm     *domain.MethodMismatchError
		exists *domain.AccountExistsError
	)
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Error())
	case errors.As(err, &mm):
		return status.Error(codes.FailedPrecondition, mm.Error())
	case errors.As(err, &exists):
		return status.Error(codes.AlreadyExists, exists.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, domain.ErrInvalidCredentials.Error())
	case errors.Is(err, domain.ErrInvalidOrExpired):
		return status.Error(codes.InvalidArgument, domain.ErrInvalidOrExpired.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, domain.ErrRateLimited.Error())
	case errors.Is(err, domain.ErrNotificationFailed):
		s.log.Warn(ctx, "notification failed", "error", err)
		return status.Error(codes.Unavailable, domain.ErrNotificationFailed.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		return status.Error(codes.NotFound, domain.ErrAccountNotFound.Error())
	case errors.Is(err, domain.ErrAlreadyVerified),
		errors.Is(err, domain.ErrNoCredentials),
		errors.Is(err, domain.ErrTwoFactorNotEnabled):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrProviderNotEnabled):
		return status.Error(codes.PermissionDenied, domain.ErrProviderNotEnabled.Error())
	}
	s.log.Error(ctx, "credential flow failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

// RegisterCredentialServiceServer registers srv with s.
func RegisterCredentialServiceServer(s grpc.ServiceRegistrar, srv CredentialServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes portal.identity.v1.CredentialService. Messages travel with the JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CredentialServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", CredentialServiceServer.Register),
		unary("Login", CredentialServiceServer.Login),
		unary("VerifyEmail", CredentialServiceServer.VerifyEmail),
		unary("ResendVerification", CredentialServiceServer.ResendVerification),
		unary("RequestPasswordReset", CredentialServiceServer.RequestPasswordReset),
		unary("ValidateResetToken", CredentialServiceServer.ValidateResetToken),
		unary("ResetPassword", CredentialServiceServer.ResetPassword),
		unary("SendTwoFactorCode", CredentialServiceServer.SendTwoFactorCode),
		unary("VerifyTwoFactorCode", CredentialServiceServer.VerifyTwoFactorCode),
		unary("FederatedSignIn", CredentialServiceServer.FederatedSignIn),
		unary("GetSession", CredentialServiceServer.GetSession),
	},
	Streams: []grpc.StreamDesc{},
}

func unary[Req, Resp any](name string, call func(CredentialServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CredentialServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(CredentialServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
