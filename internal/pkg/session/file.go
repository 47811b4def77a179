package session

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// Version of the token pair that we marshal/unmarshal
type tokenMarshal struct {
	AccessToken  string `json:"access-token"`
	RefreshToken string `json:"refresh-token"`
	TokenType    string `json:"token-type"`
}

func store(fileName string, tok *oauth2.Token) error {
	tm := tokenMarshal{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}

	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "opening token cache %s for write", fileName)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(tm); err != nil {
		return errors.Wrapf(err, "saving token cache to %s", fileName)
	}

	return nil
}

func load(fileName string) (*oauth2.Token, error) {
	tm := tokenMarshal{}

	file, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "opening token cache %s for read", fileName)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&tm); err != nil {
		return nil, errors.Wrapf(err, "loading token cache from %s", fileName)
	}

	if tm.AccessToken == "" {
		return nil, errors.Errorf("token cache %s holds no access token", fileName)
	}

	if tm.TokenType == "" {
		tm.TokenType = ufanetapi.TokenType
	}

	return &oauth2.Token{
		AccessToken:  tm.AccessToken,
		RefreshToken: tm.RefreshToken,
		TokenType:    tm.TokenType,
	}, nil
}

func remove(fileName string) error {
	if err := os.Remove(fileName); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing token cache %s", fileName)
	}
	return nil
}
