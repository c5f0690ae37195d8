// Package service scores compliance controls from a snapshot of vault facts.
package service

import (
	"fmt"

	complianceDomain "github.com/allisson/keyvault/internal/compliance/domain"
)

const controlMax = 10

func control(id, name, description string, status complianceDomain.Status, evidence string) complianceDomain.Control {
	score := 0
	switch status {
	case complianceDomain.StatusPass:
		score = controlMax
	case complianceDomain.StatusPartial:
		score = controlMax / 2
	}
	return complianceDomain.Control{
		ID:          id,
		Name:        name,
		Description: description,
		Status:      status,
		Score:       score,
		MaxScore:    controlMax,
		Evidence:    evidence,
	}
}

func passOr(ok bool, otherwise complianceDomain.Status) complianceDomain.Status {
	if ok {
		return complianceDomain.StatusPass
	}
	return otherwise
}

// HIPAA scores the ten Security Rule controls.
func HIPAA(f complianceDomain.Facts) []complianceDomain.Control {
	fail, partial := complianceDomain.StatusFail, complianceDomain.StatusPartial

	unseal := "Manual unseal only"
	if f.UnsealConfigured {
		unseal = "Auto-unseal configured"
	}
	kms := fmt.Sprintf("%s provider unhealthy", f.KmsProvider)
	if f.KmsHealthy {
		kms = fmt.Sprintf("%s provider reachable", f.KmsProvider)
	}

	return []complianceDomain.Control{
		control("HIPAA-1", "Encryption at Rest",
			"ePHI must be encrypted using AES-256 or equivalent",
			passOr(f.EncryptionConfigs > 0, fail),
			fmt.Sprintf("%d table(s) encrypted", f.EncryptionConfigs)),
		control("HIPAA-2", "Audit Controls",
			"Record and examine activity in systems containing ePHI",
			passOr(f.AuditLogs > 0, fail),
			fmt.Sprintf("%d audit log entries", f.AuditLogs)),
		control("HIPAA-3", "Data Integrity",
			"Protect ePHI from improper alteration or destruction",
			passOr(f.Secrets > 0, partial),
			fmt.Sprintf("%d secrets managed, %d versioned", f.Secrets, f.VersionedSecrets)),
		control("HIPAA-4", "Authentication",
			"Verify identity of persons seeking access to ePHI",
			authStatus(f),
			fmt.Sprintf("%d policies, %d user assignments", f.Policies, f.UserPolicies)),
		control("HIPAA-5", "Transmission Security",
			"Guard against unauthorized access during electronic transmission",
			passOr(f.KmsHealthy, fail), kms),
		control("HIPAA-6", "Access Token Management",
			"Procedures for creating, changing and safeguarding tokens",
			passOr(f.ExpiredUnrevokedTokens == 0, partial),
			fmt.Sprintf("%d active tokens, %d expired but not revoked", f.ActiveTokens, f.ExpiredUnrevokedTokens)),
		control("HIPAA-7", "Secret Rotation",
			"Automated credential rotation to limit exposure window",
			passOr(f.ActiveSchedules > 0, fail),
			fmt.Sprintf("%d active rotation schedule(s)", f.ActiveSchedules)),
		control("HIPAA-8", "Fine-Grained Access Control",
			"Per-action access control for sensitive operations",
			passOr(f.ZeroTrustPolicies > 0, partial),
			fmt.Sprintf("%d zero-trust action policies", f.ZeroTrustPolicies)),
		control("HIPAA-9", "Key Protection",
			"Hardware or software mechanisms to protect encryption keys",
			passOr(f.UnsealConfigured && f.KekWrapped, partial), unseal),
		control("HIPAA-10", "Lease Management",
			"Time-bounded access with automatic revocation",
			complianceDomain.StatusPass,
			fmt.Sprintf("%d active lease(s), %d dynamic credential(s)", f.ActiveLeases, f.ActiveCredentials)),
	}
}

// authStatus passes with policies and assignments and only partially scores policies alone.
func authStatus(f complianceDomain.Facts) complianceDomain.Status {
	switch {
	case f.Policies > 0 && f.UserPolicies > 0:
		return complianceDomain.StatusPass
	case f.Policies > 0:
		return complianceDomain.StatusPartial
	default:
		return complianceDomain.StatusFail
	}
}

// SOC2 scores eight Trust Service Criteria.
func SOC2(f complianceDomain.Facts) []complianceDomain.Control {
	fail, partial := complianceDomain.StatusFail, complianceDomain.StatusPartial

	monitoring := fail
	switch {
	case f.AuditLogs > 100:
		monitoring = complianceDomain.StatusPass
	case f.AuditLogs > 0:
		monitoring = partial
	}
	recovery := "No DEK version metadata found"
	if f.DekRotated {
		recovery = fmt.Sprintf("DEK versioning active for %d purpose(s)", f.DekPurposes)
	}

	return []complianceDomain.Control{
		control("SOC2-CC6.1", "Logical Access Security",
			"Implement logical access security over protected information assets",
			passOr(f.Policies > 0, fail),
			fmt.Sprintf("%d vault policies, %d user bindings", f.Policies, f.UserPolicies)),
		control("SOC2-CC6.3", "Encryption Controls",
			"Restrict access through encryption of data at rest and in transit",
			passOr(f.EnabledConfigs > 0, fail),
			fmt.Sprintf("%d of %d tables with field-level encryption enabled", f.EnabledConfigs, f.EncryptionConfigs)),
		control("SOC2-CC6.7", "Data Transmission",
			"Restrict the transmission of data to authorized external parties",
			passOr(f.KmsHealthy, fail),
			fmt.Sprintf("kms provider %s healthy=%t", f.KmsProvider, f.KmsHealthy)),
		control("SOC2-CC7.2", "Monitoring Activities",
			"Monitor system components for anomalies and security events",
			monitoring,
			fmt.Sprintf("%d audit entries (100+ recommended)", f.AuditLogs)),
		control("SOC2-CC7.3", "Security Event Evaluation",
			"Evaluate security events to determine whether they are incidents",
			passOr(f.SecurityEvents > 0, partial),
			fmt.Sprintf("%d security events recorded", f.SecurityEvents)),
		control("SOC2-CC8.1", "Change Management",
			"Authorize, document and approve changes",
			passOr(f.VersionedSecrets > 0, partial),
			fmt.Sprintf("%d/%d secrets have version history", f.VersionedSecrets, f.Secrets)),
		control("SOC2-A1.2", "Recovery Mechanisms",
			"Recovery infrastructure and tested recovery procedures",
			passOr(f.DekRotated && f.LastBackupAt != nil, partial),
			recovery),
		control("SOC2-C1.1", "Confidentiality",
			"Identify and protect confidential information",
			passOr(f.ZeroTrustPolicies > 0, partial),
			fmt.Sprintf("%d zero-trust action policies defined", f.ZeroTrustPolicies)),
	}
}

// GDPR scores seven Article 5, 25, 30 and 32 controls.
func GDPR(f complianceDomain.Facts) []complianceDomain.Control {
	fail, partial := complianceDomain.StatusFail, complianceDomain.StatusPartial

	resilience := "Manual unseal only"
	if f.UnsealConfigured {
		resilience = "Auto-unseal configured for availability"
	}
	if f.LastBackupAt != nil {
		resilience += ", last backup " + f.LastBackupAt.Format("2006-01-02")
	}

	return []complianceDomain.Control{
		control("GDPR-32a", "Pseudonymisation & Encryption",
			"Encryption of personal data (Article 32.1.a)",
			passOr(f.EncryptionConfigs > 0, fail),
			fmt.Sprintf("%d tables encrypted at field level", f.EncryptionConfigs)),
		control("GDPR-32b", "Confidentiality",
			"Ensure ongoing confidentiality of processing systems (Article 32.1.b)",
			passOr(f.Policies > 0, fail),
			fmt.Sprintf("%d access policies enforced", f.Policies)),
		control("GDPR-32c", "Resilience",
			"Ability to restore availability and access to data (Article 32.1.c)",
			passOr(f.UnsealConfigured, partial), resilience),
		control("GDPR-32d", "Regular Testing",
			"Process for regularly testing security measures (Article 32.1.d)",
			passOr(f.AuditLogs > 0, fail),
			fmt.Sprintf("%d audit entries for security testing evidence", f.AuditLogs)),
		control("GDPR-5f", "Integrity & Confidentiality",
			"Protect against unauthorized processing, loss or destruction (Article 5.1.f)",
			passOr(f.ZeroTrustPolicies > 0 && f.EncryptionConfigs > 0, partial),
			fmt.Sprintf("%d encryption configs, %d zero-trust policies", f.EncryptionConfigs, f.ZeroTrustPolicies)),
		control("GDPR-25", "Privacy by Design",
			"Data protection by design and by default (Article 25)",
			passOr(f.ActiveSchedules > 0, partial),
			fmt.Sprintf("%d automated rotation schedules", f.ActiveSchedules)),
		control("GDPR-30", "Processing Records",
			"Maintain records of processing activities (Article 30)",
			passOr(f.AuditLogs > 0, fail),
			fmt.Sprintf("Vault audit log maintains processing records (%d entries)", f.AuditLogs)),
	}
}

// Evaluate scores one framework.
func Evaluate(framework string, f complianceDomain.Facts) (complianceDomain.Report, bool) {
	var controls []complianceDomain.Control
	switch framework {
	case complianceDomain.FrameworkHIPAA:
		controls = HIPAA(f)
	case complianceDomain.FrameworkSOC2:
		controls = SOC2(f)
	case complianceDomain.FrameworkGDPR:
		controls = GDPR(f)
	default:
		return complianceDomain.Report{}, false
	}
	r := complianceDomain.Report{Framework: framework, Controls: controls}
	r.Finalize()
	return r, true
}
