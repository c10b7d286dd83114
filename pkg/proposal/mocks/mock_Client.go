// Package mocks provides test doubles for the proposal client.
package mocks

import (
	"context"
	"io"

	proposal "github.com/sells-group/rfp-ingest/pkg/proposal"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// UploadDocument provides a mock function with given fields: ctx, projectID, fileName, body
func (_m *MockClient) UploadDocument(ctx context.Context, projectID string, fileName string, body io.Reader) (*proposal.UploadResponse, error) {
	ret := _m.Called(ctx, projectID, fileName, body)

	if len(ret) == 0 {
		panic("no return value specified for UploadDocument")
	}

	var r0 *proposal.UploadResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string, io.Reader) (*proposal.UploadResponse, error)); ok {
		return rf(ctx, projectID, fileName, body)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*proposal.UploadResponse)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// StartAsyncAnalysis provides a mock function with given fields: ctx, documentID, opts
func (_m *MockClient) StartAsyncAnalysis(ctx context.Context, documentID string, opts proposal.AnalysisOptions) (*proposal.StartAnalysisResponse, error) {
	ret := _m.Called(ctx, documentID, opts)

	if len(ret) == 0 {
		panic("no return value specified for StartAsyncAnalysis")
	}

	var r0 *proposal.StartAnalysisResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, proposal.AnalysisOptions) (*proposal.StartAnalysisResponse, error)); ok {
		return rf(ctx, documentID, opts)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*proposal.StartAnalysisResponse)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// GetJobStatus provides a mock function with given fields: ctx, jobID
func (_m *MockClient) GetJobStatus(ctx context.Context, jobID string) (*proposal.JobStatus, error) {
	ret := _m.Called(ctx, jobID)

	if len(ret) == 0 {
		panic("no return value specified for GetJobStatus")
	}

	var r0 *proposal.JobStatus
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*proposal.JobStatus, error)); ok {
		return rf(ctx, jobID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*proposal.JobStatus)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// GetAnalysis provides a mock function with given fields: ctx, documentID
func (_m *MockClient) GetAnalysis(ctx context.Context, documentID string) (*proposal.AnalysisResult, error) {
	ret := _m.Called(ctx, documentID)

	if len(ret) == 0 {
		panic("no return value specified for GetAnalysis")
	}

	var r0 *proposal.AnalysisResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*proposal.AnalysisResult, error)); ok {
		return rf(ctx, documentID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*proposal.AnalysisResult)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// AnalyzeDocument provides a mock function with given fields: ctx, documentID
func (_m *MockClient) AnalyzeDocument(ctx context.Context, documentID string) (*proposal.AnalysisResult, error) {
	ret := _m.Called(ctx, documentID)

	if len(ret) == 0 {
		panic("no return value specified for AnalyzeDocument")
	}

	var r0 *proposal.AnalysisResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*proposal.AnalysisResult, error)); ok {
		return rf(ctx, documentID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*proposal.AnalysisResult)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// AutoBuildSections provides a mock function with given fields: ctx, documentID, sectionIDs, generateContent
func (_m *MockClient) AutoBuildSections(ctx context.Context, documentID string, sectionIDs []string, generateContent bool) error {
	ret := _m.Called(ctx, documentID, sectionIDs, generateContent)

	if len(ret) == 0 {
		panic("no return value specified for AutoBuildSections")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, []string, bool) error); ok {
		return rf(ctx, documentID, sectionIDs, generateContent)
	}
	return ret.Error(0)
}

// PopulateQA provides a mock function with given fields: ctx, projectID, opts
func (_m *MockClient) PopulateQA(ctx context.Context, projectID string, opts proposal.PopulateQAOptions) error {
	ret := _m.Called(ctx, projectID, opts)

	if len(ret) == 0 {
		panic("no return value specified for PopulateQA")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, proposal.PopulateQAOptions) error); ok {
		return rf(ctx, projectID, opts)
	}
	return ret.Error(0)
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
