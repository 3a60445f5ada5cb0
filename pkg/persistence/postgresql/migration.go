package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow executions: one row per run, plugins embedded as an
			-- ordered JSONB array. Claim columns implement the worker lease.
			CREATE TABLE workflow_executions (
				id CHAR(24) PRIMARY KEY,
				dataset_id VARCHAR(255) NOT NULL,
				priority INT NOT NULL DEFAULT 0,
				status VARCHAR(20) NOT NULL CHECK (status IN ('INQUEUE', 'RUNNING', 'FINISHED', 'FAILED', 'CANCELLED')),
				plugins JSONB NOT NULL DEFAULT '[]',
				created_date TIMESTAMP WITH TIME ZONE NOT NULL,
				started_date TIMESTAMP WITH TIME ZONE,
				updated_date TIMESTAMP WITH TIME ZONE,
				finished_date TIMESTAMP WITH TIME ZONE,
				cancelling BOOLEAN NOT NULL DEFAULT FALSE,
				cancelled_by VARCHAR(255),
				worker_id VARCHAR(255),
				claim_expiry TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_queued ON workflow_executions(priority, created_date) WHERE status = 'INQUEUE';
			CREATE INDEX idx_executions_dataset_status ON workflow_executions(dataset_id, status);
			CREATE INDEX idx_executions_claim_expiry ON workflow_executions(claim_expiry) WHERE status = 'RUNNING';
			CREATE INDEX idx_executions_started_date ON workflow_executions(started_date) WHERE status = 'RUNNING';

			-- Workflow templates
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				dataset_id VARCHAR(255) NOT NULL,
				plugins JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_dataset ON workflows(dataset_id);

			-- Datasets (engine-side projection, CRUD lives elsewhere)
			CREATE TABLE datasets (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				xslt_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			-- Transformation stylesheets; dataset_id NULL marks a shared default
			CREATE TABLE dataset_xslts (
				id VARCHAR(255) PRIMARY KEY,
				dataset_id VARCHAR(255),
				xslt TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_dataset_xslts_default ON dataset_xslts(created_at) WHERE dataset_id IS NULL;

			-- Calendar rules for the trigger producer
			CREATE TABLE scheduled_workflows (
				id VARCHAR(255) PRIMARY KEY,
				dataset_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				cron_expression VARCHAR(255) NOT NULL,
				pointer_date TIMESTAMP WITH TIME ZONE NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_scheduled_workflows_due ON scheduled_workflows(next_due_at) WHERE active;
		`,
	}
}
