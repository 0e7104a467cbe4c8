package model

// NotificationKind names a user-facing message the core asks the messaging
// layer to deliver.
type NotificationKind string

const (
	NotifyUnblocked      NotificationKind = "unblocked"
	NotifyPlanExpired    NotificationKind = "plan_expired"
	NotifyPlanActivated  NotificationKind = "plan_activated"
	NotifyVIPCredited    NotificationKind = "vip_credited"
	NotifyReferralReward NotificationKind = "referral_reward"
)

// Intent is a queued notification. Args feed the message template.
type Intent struct {
	UserID int64
	Kind   NotificationKind
	Args   map[string]string
}

func NewIntent(userID int64, kind NotificationKind, kv ...string) Intent {
	in := Intent{UserID: userID, Kind: kind}
	if len(kv) > 1 {
		in.Args = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			in.Args[kv[i]] = kv[i+1]
		}
	}
	return in
}
