package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"contactlink/internal/contact/handler/mocks"
	"contactlink/internal/contact/models"
	dErrors "contactlink/pkg/domain-errors"
	"contactlink/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/contact-mocks.go -package=mocks Service
type ContactHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestContactHandlerSuite(t *testing.T) {
	suite.Run(t, new(ContactHandlerSuite))
}

func (s *ContactHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger, nil).Register(s.router)
}

func strPtr(v string) *string { return &v }

var mergedIdentity = &models.Identity{
	PrimaryContactID:    1,
	Emails:              []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"},
	PhoneNumbers:        []string{"919191", "717171"},
	SecondaryContactIDs: []int64{27},
}

const mergedJSON = `{"contact":{
	"primaryContatctId":1,
	"emails":["george@hillvalley.edu","biffsucks@hillvalley.edu"],
	"phoneNumbers":["919191","717171"],
	"secondaryContactIds":[27]
}}`

func (s *ContactHandlerSuite) TestIdentify() {
	s.Run("returns the consolidated contact", func() {
		s.service.EXPECT().Identify(gomock.Any(), models.IdentifyRequest{
			Email:       strPtr("george@hillvalley.edu"),
			PhoneNumber: strPtr("717171"),
		}).Return(mergedIdentity, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/identify",
			`{"email":"george@hillvalley.edu","phoneNumber":"717171"}`))

		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(mergedJSON, rr.Body.String())
		s.NotEmpty(rr.Header().Get("X-Request-ID"))
	})

	s.Run("accepts a numeric phone number", func() {
		s.service.EXPECT().Identify(gomock.Any(), models.IdentifyRequest{
			PhoneNumber: strPtr("717171"),
		}).Return(mergedIdentity, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/identify",
			`{"email":null,"phoneNumber":717171}`))

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("serves the api alias", func() {
		s.service.EXPECT().Identify(gomock.Any(), models.IdentifyRequest{
			Email: strPtr("george@hillvalley.edu"),
		}).Return(mergedIdentity, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/identify",
			map[string]any{"email": " george@hillvalley.edu "}))

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("renders empty lists rather than null", func() {
		s.service.EXPECT().Identify(gomock.Any(), gomock.Any()).Return(&models.Identity{PrimaryContactID: 5}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/identify",
			`{"phoneNumber":"5"}`))

		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"contact":{"primaryContatctId":5,"emails":[],"phoneNumbers":[],"secondaryContactIds":[]}}`, rr.Body.String())
	})
}

func (s *ContactHandlerSuite) TestIdentifyRejectsBadInput() {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"both identifiers absent", `{}`, string(dErrors.CodeValidation)},
		{"both identifiers null", `{"email":null,"phoneNumber":null}`, string(dErrors.CodeValidation)},
		{"both identifiers blank", `{"email":"","phoneNumber":"  "}`, string(dErrors.CodeValidation)},
		{"malformed json", `{"email":`, string(dErrors.CodeBadRequest)},
		{"phone of the wrong type", `{"phoneNumber":true}`, string(dErrors.CodeBadRequest)},
	}
	for _, tc := range tests {
		s.Run(tc.name, func() {
			rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/identify", tc.body))
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, tc.code)
		})
	}
}

func (s *ContactHandlerSuite) TestIdentifyServiceErrors() {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invariant violation", dErrors.New(dErrors.CodeInvariantViolation, "cluster has no primary contact"), http.StatusInternalServerError, "invariant_violation"},
		{"store failure", dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "failed to match contacts"), http.StatusInternalServerError, "internal_error"},
		{"timeout", dErrors.New(dErrors.CodeTimeout, "transaction aborted"), http.StatusGatewayTimeout, "timeout"},
		{"conflict", dErrors.New(dErrors.CodeConflict, "cluster kept changing"), http.StatusConflict, "conflict"},
	}
	for _, tc := range tests {
		s.Run(tc.name, func() {
			s.service.EXPECT().Identify(gomock.Any(), gomock.Any()).Return(nil, tc.err)

			rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/identify", `{"email":"a@x.io"}`))

			testutil.AssertStatus(s.T(), rr, tc.status)
			errResp := testutil.UnmarshalErrorResponse(s.T(), rr)
			s.Equal(tc.code, errResp.Error)
			if tc.status == http.StatusInternalServerError {
				s.Empty(errResp.ErrorDescription, "internal details stay in logs")
			}
		})
	}
}

func (s *ContactHandlerSuite) TestIdentifyPassesRequestContext() {
	s.service.EXPECT().Identify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ models.IdentifyRequest) (*models.Identity, error) {
			_, hasDeadline := ctx.Deadline()
			s.True(hasDeadline, "request timeout applies")
			return mergedIdentity, nil
		})

	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/identify", `{"email":"a@x.io"}`)
	req.Header.Set("X-Request-ID", "req-42")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("req-42", rr.Header().Get("X-Request-ID"))
}

func (s *ContactHandlerSuite) TestView() {
	s.Run("returns the cluster of a contact", func() {
		s.service.EXPECT().View(gomock.Any(), int64(27)).Return(mergedIdentity, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/contacts/27"))

		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(mergedJSON, rr.Body.String())
	})

	s.Run("unknown contact", func() {
		s.service.EXPECT().View(gomock.Any(), int64(404)).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "contact not found"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/contacts/404"))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("rejects a non-numeric id", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/contacts/abc"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}
