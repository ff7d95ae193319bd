package remote

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/labstack/gommon/log"
)

// LambdaAPI is the part of the Lambda client the invoker uses.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

var _ LambdaAPI = (*lambda.Client)(nil)

// LambdaInvoker calls functions synchronously on AWS Lambda.
type LambdaInvoker struct {
	client LambdaAPI
	logger *log.Logger
}

// NewLambdaInvoker creates an invoker from a resolved AWS configuration.
func NewLambdaInvoker(cfg aws.Config) *LambdaInvoker {
	return NewLambdaInvokerWithClient(lambda.NewFromConfig(cfg))
}

// NewLambdaInvokerWithClient wraps an existing client.
func NewLambdaInvokerWithClient(client LambdaAPI) *LambdaInvoker {
	return &LambdaInvoker{client: client, logger: log.New("remote")}
}

// Invoke runs function with a RequestResponse invocation. A non-empty
// FunctionError in the output is returned as ErrFunctionFailed alongside
// the result.
func (l *LambdaInvoker) Invoke(ctx context.Context, function string, payload []byte) (*Result, error) {
	out, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(function),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoking %s: %w", function, err)
	}

	result := &Result{
		StatusCode:    int(out.StatusCode),
		FunctionError: aws.ToString(out.FunctionError),
		Payload:       out.Payload,
	}
	if result.FunctionError != "" {
		l.logger.Warnf("function %s returned error %q", function, result.FunctionError)
		return result, fmt.Errorf("%w: %s: %s", ErrFunctionFailed, function, result.FunctionError)
	}

	l.logger.Debugf("function %s returned status %d", function, result.StatusCode)
	return result, nil
}
