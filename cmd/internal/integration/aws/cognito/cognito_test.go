package cognitoclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"medibook/cmd/internal/auth"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	signUp         func(*cognitoidentityprovider.SignUpInput) (*cognitoidentityprovider.SignUpOutput, error)
	initiateAuth   func(*cognitoidentityprovider.InitiateAuthInput) (*cognitoidentityprovider.InitiateAuthOutput, error)
	changePassword func(*cognitoidentityprovider.ChangePasswordInput) (*cognitoidentityprovider.ChangePasswordOutput, error)
	confirmed      *cognitoidentityprovider.ConfirmSignUpInput
	deleted        *cognitoidentityprovider.AdminDeleteUserInput
}

func (f *fakeAPI) SignUp(_ context.Context, in *cognitoidentityprovider.SignUpInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error) {
	return f.signUp(in)
}

func (f *fakeAPI) ConfirmSignUp(_ context.Context, in *cognitoidentityprovider.ConfirmSignUpInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error) {
	f.confirmed = in
	return &cognitoidentityprovider.ConfirmSignUpOutput{}, nil
}

func (f *fakeAPI) InitiateAuth(_ context.Context, in *cognitoidentityprovider.InitiateAuthInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error) {
	return f.initiateAuth(in)
}

func (f *fakeAPI) ChangePassword(_ context.Context, in *cognitoidentityprovider.ChangePasswordInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ChangePasswordOutput, error) {
	return f.changePassword(in)
}

func (f *fakeAPI) AdminDeleteUser(_ context.Context, in *cognitoidentityprovider.AdminDeleteUserInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminDeleteUserOutput, error) {
	f.deleted = in
	return &cognitoidentityprovider.AdminDeleteUserOutput{}, nil
}

func tokenFor(password string) func(*cognitoidentityprovider.InitiateAuthInput) (*cognitoidentityprovider.InitiateAuthOutput, error) {
	return func(in *cognitoidentityprovider.InitiateAuthInput) (*cognitoidentityprovider.InitiateAuthOutput, error) {
		if in.AuthParameters["PASSWORD"] != password {
			return nil, &smithy.GenericAPIError{Code: "NotAuthorizedException", Message: "Incorrect username or password."}
		}
		return &cognitoidentityprovider.InitiateAuthOutput{
			AuthenticationResult: &types.AuthenticationResultType{AccessToken: aws.String("access-token")},
		}, nil
	}
}

func TestSignUp(t *testing.T) {
	api := &fakeAPI{signUp: func(in *cognitoidentityprovider.SignUpInput) (*cognitoidentityprovider.SignUpOutput, error) {
		assert.Equal(t, "client", aws.ToString(in.ClientId))
		assert.Equal(t, "a@x.com", aws.ToString(in.Username))
		assert.Nil(t, in.SecretHash)
		return &cognitoidentityprovider.SignUpOutput{UserSub: aws.String("sub-1")}, nil
	}}
	p := New(api, Options{ClientID: "client"})

	reg, err := p.SignUp(context.Background(), &auth.Credentials{Email: "a@x.com", Password: "Secret1!"})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", reg.Subject)
	assert.False(t, reg.Confirmed)
	assert.Empty(t, reg.PasswordHash)
}

func TestSignUpPassesThroughAPIErrors(t *testing.T) {
	api := &fakeAPI{signUp: func(*cognitoidentityprovider.SignUpInput) (*cognitoidentityprovider.SignUpOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "UsernameExistsException"}
	}}
	_, err := New(api, Options{ClientID: "client"}).SignUp(context.Background(), &auth.Credentials{Email: "a@x.com"})

	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UsernameExistsException", apiErr.ErrorCode())
}

func TestSignInAndSecretHash(t *testing.T) {
	var params map[string]string
	api := &fakeAPI{initiateAuth: func(in *cognitoidentityprovider.InitiateAuthInput) (*cognitoidentityprovider.InitiateAuthOutput, error) {
		params = in.AuthParameters
		assert.Equal(t, types.AuthFlowTypeUserPasswordAuth, in.AuthFlow)
		return tokenFor("Secret1!")(in)
	}}
	p := New(api, Options{ClientID: "client", ClientSecret: "shh"})

	require.NoError(t, p.SignIn(context.Background(), &auth.Credentials{Email: "a@x.com", Password: "Secret1!"}, ""))

	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write([]byte("a@x.comclient"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), params["SECRET_HASH"])

	err := p.SignIn(context.Background(), &auth.Credentials{Email: "a@x.com", Password: "nope"}, "")
	assert.Error(t, err)
}

func TestChangePassword(t *testing.T) {
	var changed *cognitoidentityprovider.ChangePasswordInput
	api := &fakeAPI{
		initiateAuth: tokenFor("old"),
		changePassword: func(in *cognitoidentityprovider.ChangePasswordInput) (*cognitoidentityprovider.ChangePasswordOutput, error) {
			changed = in
			return &cognitoidentityprovider.ChangePasswordOutput{}, nil
		},
	}
	p := New(api, Options{ClientID: "client"})

	_, err := p.ChangePassword(context.Background(), "a@x.com", "wrong", "new", "")
	assert.Error(t, err)
	assert.Nil(t, changed)

	hash, err := p.ChangePassword(context.Background(), "a@x.com", "old", "new", "")
	require.NoError(t, err)
	assert.Empty(t, hash)
	assert.Equal(t, "access-token", aws.ToString(changed.AccessToken))
	assert.Equal(t, "new", aws.ToString(changed.ProposedPassword))
}

func TestConfirmAndRevoke(t *testing.T) {
	api := &fakeAPI{}
	p := New(api, Options{ClientID: "client", UserPoolID: "pool"})

	require.NoError(t, p.Confirm(context.Background(), &auth.Confirmation{Email: "a@x.com", Code: "123456"}))
	assert.Equal(t, "123456", aws.ToString(api.confirmed.ConfirmationCode))

	require.NoError(t, p.Revoke(context.Background(), "a@x.com"))
	assert.Equal(t, "pool", aws.ToString(api.deleted.UserPoolId))
	assert.Equal(t, "a@x.com", aws.ToString(api.deleted.Username))
}
