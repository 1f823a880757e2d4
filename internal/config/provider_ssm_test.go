package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmTypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSSM serves parameters from a map and records each batch.
type fakeSSM struct {
	params  map[string]string
	err     error
	batches [][]string
}

func (f *fakeSSM) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, in.Names)
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range in.Names {
		if v, ok := f.params[name]; ok {
			out.Parameters = append(out.Parameters, ssmTypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, name)
		}
	}
	return out, nil
}

func TestSSMProvider_Batches(t *testing.T) {
	fake := &fakeSSM{params: map[string]string{}}
	keys := make([]string, 23)
	for i := range keys {
		keys[i] = fmt.Sprintf("/prod/eventpipe/p%02d", i)
		fake.params[keys[i]] = fmt.Sprintf("v%d", i)
	}
	p := newSSMProviderWithClient("us-east-1", fake)

	got, err := p.GetParametersBatch(context.Background(), keys)

	require.NoError(t, err)
	assert.Len(t, got, 23)
	assert.Equal(t, "v22", got["/prod/eventpipe/p22"])
	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0], 10)
	assert.Len(t, fake.batches[2], 3)
}

func TestSSMProvider_EmptyKeys(t *testing.T) {
	p := newSSMProviderWithClient("us-east-1", &fakeSSM{})
	got, err := p.GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSSMProvider_InvalidParameter(t *testing.T) {
	fake := &fakeSSM{params: map[string]string{"/prod/eventpipe/database_url": "postgres://x"}}
	p := newSSMProviderWithClient("us-east-1", fake)

	_, err := p.GetParametersBatch(context.Background(), []string{"/prod/eventpipe/database_url", "/prod/eventpipe/missing"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "/prod/eventpipe/missing")
}

func TestSSMProvider_ClientError(t *testing.T) {
	p := newSSMProviderWithClient("us-east-1", &fakeSSM{err: errors.New("throttled")})

	_, err := p.GetParametersBatch(context.Background(), []string{"/a"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSSMProvider_CancelledContext(t *testing.T) {
	fake := &fakeSSM{}
	p := newSSMProviderWithClient("us-east-1", fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetParametersBatch(ctx, []string{"/a"})

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.batches)
}

func TestProviderFor(t *testing.T) {
	assert.IsType(t, &EnvVarProvider{}, ProviderFor("local", "us-east-1", ""))

	p, ok := ProviderFor("prod", "eu-west-1", "http://localhost:4566").(*SSMProvider)
	require.True(t, ok)
	assert.Equal(t, "eu-west-1", p.region)
	assert.Equal(t, "http://localhost:4566", p.endpointURL)
}
