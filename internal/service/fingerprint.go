package service

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"

	"verifytx_gateway/internal/model"
)

const fingerprintPrefix = "vtx_"

// Fingerprint is the cache key of a request. Names are compared
// case-insensitively; encoding/json sorts map keys so the hash does not
// depend on field order.
func Fingerprint(req *model.VerificationRequest) string {
	data, _ := json.Marshal(map[string]string{
		"member_id":     req.MemberID,
		"payer_id":      req.PayerID,
		"date_of_birth": req.DateOfBirth,
		"first_name":    strings.ToLower(req.FirstName),
		"last_name":     strings.ToLower(req.LastName),
		"group_number":  req.GroupNumber,
	})

	hash := md5.Sum(data)
	return fingerprintPrefix + hex.EncodeToString(hash[:])
}
