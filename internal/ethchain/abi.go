package ethchain

// anchorABI describes the three settlement-chain entry points the anchor
// drives: committing a rollup block, verifying a previously committed
// block's proof, and releasing withdrawals once a block is verified.
//
// Mirrors the shape of sro.StateRootOracleABI in the batch-submitter
// bindings this package is grounded on, trimmed to the methods the anchor
// actually calls.
const anchorABI = `[
	{
		"type": "function",
		"name": "commitBlock",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "_blockNumber", "type": "uint32"},
			{"name": "_feeAccount", "type": "uint24"},
			{"name": "_newRoot", "type": "bytes32"},
			{"name": "_publicData", "type": "bytes"},
			{"name": "_witnessData", "type": "bytes"},
			{"name": "_witnessDataAux", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "verifyBlock",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "_blockNumber", "type": "uint32"},
			{"name": "_proof", "type": "uint256[8]"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "completeWithdrawals",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "_maxWithdrawalsToComplete", "type": "uint32"}
		],
		"outputs": []
	}
]`
