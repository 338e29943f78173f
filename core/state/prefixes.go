package state

var (
	proposalRecordPrefix        = []byte("proposal/")
	proposalProposerIdxPrefix   = []byte("proposal-idx/proposer/")
	proposalReceiverIdxPrefix   = []byte("proposal-idx/receiver/")
	proposalProposerStatusIdxPx = []byte("proposal-idx/proposer-status/")
	proposalReceiverStatusIdxPx = []byte("proposal-idx/receiver-status/")
	proposalNextIDKey           = []byte("proposal-meta/next-id")
	proposalConfigKey           = []byte("proposal-meta/config")
	proposalOwnerKey            = []byte("proposal-meta/owner")
	proposalCounterKeyFormat    = "proposal-meta/count/%s"
)
